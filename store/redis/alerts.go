/*
Package redis provides a Redis implementation of stock.AlertStore.

PURPOSE:
  Lets several kitchen servers share one alert inbox while the ledger lives
  in SQL. Only alerts are stored here; the ledger needs transactions that
  Redis does not provide.

KEYS (all under a configurable prefix, default "stock:"):
  alert:<id>                   JSON alert record
  alert:open:<ingredient>:<type> ID of the open alert for the pair
  alerts:open                  Sorted set of open alert IDs scored by CreatedAt

DEDUP:
  InsertOpen runs a Lua script that checks the pair key and writes all three
  keys in one step, so concurrent evaluators can never open two alerts for
  the same (ingredient, type).

SEE ALSO:
  - stock/store.go: AlertStore contract
  - store/sqlite/alerts.go: The same contract on a partial unique index
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/stock-engine/stock"
)

const (
	defaultPrefix = "stock:"
	maxAckRetries = 5
)

// insertOpenScript returns {1, id} when created, {0, existing} when an open
// alert already holds the pair, {-1, ""} when the ID is taken.
var insertOpenScript = goredis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	return {0, existing}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return {-1, ''}
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return {1, ARGV[1]}
`)

// AlertStore implements stock.AlertStore.
type AlertStore struct {
	client *goredis.Client
	prefix string
}

type Option func(*AlertStore)

// WithKeyPrefix namespaces every key. Tests use it for isolation.
func WithKeyPrefix(prefix string) Option {
	return func(s *AlertStore) { s.prefix = prefix }
}

func New(client *goredis.Client, opts ...Option) *AlertStore {
	s := &AlertStore{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks connectivity.
func (s *AlertStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// =============================================================================
// KEYS & RECORDS
// =============================================================================

func (s *AlertStore) alertKey(id stock.AlertID) string {
	return s.prefix + "alert:" + string(id)
}

func (s *AlertStore) pairKey(ing stock.IngredientID, t stock.AlertType) string {
	return s.prefix + "alert:open:" + string(ing) + ":" + string(t)
}

func (s *AlertStore) openKey() string {
	return s.prefix + "alerts:open"
}

type alertRecord struct {
	ID             string     `json:"id"`
	IngredientID   string     `json:"ingredient_id"`
	Type           string     `json:"type"`
	Message        string     `json:"message"`
	Branch         string     `json:"branch"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	State          string     `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toRecord(a stock.Alert) alertRecord {
	return alertRecord{
		ID:             string(a.ID),
		IngredientID:   string(a.IngredientID),
		Type:           string(a.Type),
		Message:        a.Message,
		Branch:         a.Branch,
		Acknowledged:   a.Acknowledged,
		AcknowledgedBy: a.AcknowledgedBy,
		AcknowledgedAt: a.AcknowledgedAt,
		State:          string(a.State),
		CreatedAt:      a.CreatedAt.UTC(),
	}
}

func (r alertRecord) toDomain() stock.Alert {
	return stock.Alert{
		ID:             stock.AlertID(r.ID),
		IngredientID:   stock.IngredientID(r.IngredientID),
		Type:           stock.AlertType(r.Type),
		Message:        r.Message,
		Branch:         r.Branch,
		Acknowledged:   r.Acknowledged,
		AcknowledgedBy: r.AcknowledgedBy,
		AcknowledgedAt: r.AcknowledgedAt,
		State:          stock.Lifecycle(r.State),
		CreatedAt:      r.CreatedAt,
	}
}

func decode(raw []byte) (stock.Alert, error) {
	var rec alertRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return stock.Alert{}, fmt.Errorf("failed to decode alert: %w", err)
	}
	return rec.toDomain(), nil
}

// =============================================================================
// ALERTS (stock.AlertStore interface)
// =============================================================================

func (s *AlertStore) InsertOpen(ctx context.Context, a stock.Alert) (stock.Alert, bool, error) {
	if a.State == "" {
		a.State = stock.LifecycleActive
	}
	body, err := json.Marshal(toRecord(a))
	if err != nil {
		return stock.Alert{}, false, fmt.Errorf("failed to encode alert: %w", err)
	}

	keys := []string{s.pairKey(a.IngredientID, a.Type), s.alertKey(a.ID), s.openKey()}
	res, err := insertOpenScript.Run(ctx, s.client, keys, string(a.ID), body, a.CreatedAt.UnixNano()).Slice()
	if err != nil {
		return stock.Alert{}, false, fmt.Errorf("failed to insert alert: %w", err)
	}
	if len(res) != 2 {
		return stock.Alert{}, false, fmt.Errorf("unexpected script reply %v", res)
	}

	status, _ := res[0].(int64)
	id, _ := res[1].(string)
	switch status {
	case 1:
		return a, true, nil
	case 0:
		existing, err := s.load(ctx, stock.AlertID(id))
		if err != nil {
			return stock.Alert{}, false, err
		}
		return existing, false, nil
	default:
		return stock.Alert{}, false, fmt.Errorf("%w: alert %s", stock.ErrDuplicateID, a.ID)
	}
}

func (s *AlertStore) GetAlert(ctx context.Context, id stock.AlertID) (stock.Alert, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return stock.Alert{}, err
	}
	if a.State == stock.LifecycleDeleted {
		return stock.Alert{}, fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
	}
	return a, nil
}

func (s *AlertStore) load(ctx context.Context, id stock.AlertID) (stock.Alert, error) {
	raw, err := s.client.Get(ctx, s.alertKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return stock.Alert{}, fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
	}
	if err != nil {
		return stock.Alert{}, fmt.Errorf("failed to get alert: %w", err)
	}
	return decode(raw)
}

// Acknowledge closes an open alert and frees its pair.
func (s *AlertStore) Acknowledge(ctx context.Context, id stock.AlertID, actor string, at time.Time) (stock.Alert, error) {
	var result stock.Alert
	err := s.update(ctx, id, func(a *stock.Alert) bool {
		if a.Acknowledged {
			result = *a
			return false
		}
		acknowledgedAt := at.UTC()
		a.Acknowledged = true
		a.AcknowledgedBy = actor
		a.AcknowledgedAt = &acknowledgedAt
		result = *a
		return true
	})
	return result, err
}

// DeleteAlert soft-deletes an alert and frees its pair if it was open.
func (s *AlertStore) DeleteAlert(ctx context.Context, id stock.AlertID) error {
	return s.update(ctx, id, func(a *stock.Alert) bool {
		a.State = stock.LifecycleDeleted
		return true
	})
}

// update applies change under WATCH on the alert key. Writes happen only
// when change reports true.
func (s *AlertStore) update(ctx context.Context, id stock.AlertID, change func(*stock.Alert) bool) error {
	key := s.alertKey(id)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to get alert: %w", err)
		}
		a, err := decode(raw)
		if err != nil {
			return err
		}
		if a.State == stock.LifecycleDeleted {
			return fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
		}
		wasOpen := a.IsOpen()
		if !change(&a) {
			return nil
		}
		body, err := json.Marshal(toRecord(a))
		if err != nil {
			return fmt.Errorf("failed to encode alert: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, key, body, 0)
			if wasOpen && !a.IsOpen() {
				p.Del(ctx, s.pairKey(a.IngredientID, a.Type))
				p.ZRem(ctx, s.openKey(), string(id))
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxAckRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: alert %s", stock.ErrConcurrentModification, id)
}

func (s *AlertStore) ListOpen(ctx context.Context, filter stock.AlertFilter) ([]stock.Alert, error) {
	ids, err := s.client.ZRange(ctx, s.openKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.alertKey(stock.AlertID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load open alerts: %w", err)
	}

	var result []stock.Alert
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		a, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		if filter.Matches(a) {
			result = append(result, a)
		}
	}
	return result, nil
}

// Reset deletes every key under the prefix (for testing/demo).
func (s *AlertStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"alert*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

package updates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/pkg/hub"
)

var (
	ErrMissingType   = errors.New("update has no type")
	ErrMissingData   = errors.New("update has no data")
	ErrMalformedData = errors.New("malformed update data")
)

type UnknownTypeError struct {
	Type string
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown update type: %s", e.Type)
}

// HandlerFunc applies one update and returns a short description of what it did.
type HandlerFunc func(ctx context.Context, data map[string]any) (string, error)

// Result is the outcome of one update record.
type Result struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

var _ hub.UpdateHandler = (*Dispatcher)(nil)

// Dispatcher routes updates to handlers by exact type name.
// A failing record never affects the others.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Handle(updateType string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[updateType] = h
}

func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Process applies the records in order and returns one result per record.
func (d *Dispatcher) Process(ctx context.Context, records []hub.Update) []Result {
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		res := Result{ID: rec.ID, Type: rec.Type}
		msg, err := d.apply(ctx, rec)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
			res.Result = msg
		}
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) apply(ctx context.Context, rec hub.Update) (msg string, err error) {
	if rec.Type == "" {
		return "", ErrMissingType
	}
	d.mu.RLock()
	h, ok := d.handlers[rec.Type]
	d.mu.RUnlock()
	if !ok {
		return "", UnknownTypeError{Type: rec.Type}
	}
	data, err := decodeData(rec.Data)
	if err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update handler panicked: %v", r)
		}
	}()
	return h(ctx, data)
}

// decodeData accepts only a JSON object.
func decodeData(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrMissingData
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return data, nil
}

// HandleUpdates processes updates returned by the hub during sync and logs the outcome.
func (d *Dispatcher) HandleUpdates(ctx context.Context, updates []hub.Update) {
	for _, res := range d.Process(ctx, updates) {
		if res.Success {
			log.Info().Str("type", res.Type).Str("result", res.Result).Msg("remote update applied")
		} else {
			log.Error().Str("type", res.Type).Str("error", res.Error).Msg("failed to process remote update")
		}
	}
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"gym-agent-server-go/db"
	"gym-agent-server-go/models"
)

// Actions accepted by Execute.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// missingFecha is the sort key for payments without a fecha, so they come last.
const missingFecha = "0000-00-00"

// messages are the user-facing texts of one entity.
type messages struct {
	missingFields  string
	created        string
	found          string
	notFound       string
	foundBy        string // takes the secondary key value
	unsortedBy     string // takes the secondary key value
	notFoundBy     string
	listed         string
	missingID      string
	updated        string
	updateNotFound string
	deleted        string
	deleteNotFound string
	invalidRead    string
	unrecognized   string
	storageFailed  string
}

// secondaryKey describes the non-id lookup of an entity.
type secondaryKey struct {
	fields      []string
	match       func(rec, payload models.Record) bool
	single      bool // first match only, not-found when there is none
	sortByFecha bool // newest first, lexicographic
}

type entityDef struct {
	collection string
	required   []string
	secondary  secondaryKey
	msgs       messages
}

// EntityService runs create/read/update/delete over one collection.
type EntityService struct {
	def   entityDef
	store db.Store
}

// Collection returns the name of the collection the service owns.
func (s *EntityService) Collection() string {
	return s.def.collection
}

// Required returns the fields a create payload must carry.
func (s *EntityService) Required() []string {
	return append([]string(nil), s.def.required...)
}

// Execute applies action to payload. It never returns an error: failures come
// back as an envelope with status "error".
func (s *EntityService) Execute(ctx context.Context, action string, payload models.Record) models.Envelope {
	entry := log.WithFields(log.Fields{
		"collection": s.def.collection,
		"action":     action,
	})
	entry.Debugf("Executing with payload %v", payload)

	data, message, err := s.execute(ctx, action, payload)
	if err != nil {
		entry.WithError(err).Info("Operation rejected")
		return models.Failure(message)
	}
	return models.Success(message, data)
}

func (s *EntityService) execute(ctx context.Context, action string, payload models.Record) (interface{}, string, error) {
	switch action {
	case ActionCreate:
		return s.create(ctx, payload)
	case ActionRead:
		return s.read(ctx, payload)
	case ActionUpdate:
		return s.update(ctx, payload)
	case ActionDelete:
		return s.delete(ctx, payload)
	default:
		return nil, s.def.msgs.unrecognized, fmt.Errorf("%w: %q", ErrUnrecognizedAction, action)
	}
}

func (s *EntityService) create(ctx context.Context, payload models.Record) (interface{}, string, error) {
	var missing []string
	for _, field := range s.def.required {
		if !payload.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(payload) == 0 || len(missing) > 0 {
		return nil, s.def.msgs.missingFields, fmt.Errorf("%w: %s", ErrValidation, strings.Join(missing, ", "))
	}

	records := s.store.Load(ctx, s.def.collection)
	record := payload.Clone()
	record[models.FieldID] = newID(records)
	records = append(records, record)

	if err := s.persist(ctx, records); err != nil {
		return nil, s.def.msgs.storageFailed, err
	}
	return record, s.def.msgs.created, nil
}

func (s *EntityService) read(ctx context.Context, payload models.Record) (interface{}, string, error) {
	records := s.store.Load(ctx, s.def.collection)

	if payload.HasValue(models.FieldID) {
		idx := indexByID(records, payload[models.FieldID])
		if idx < 0 {
			return nil, s.def.msgs.notFound, fmt.Errorf("%w: id %v", ErrNotFound, payload[models.FieldID])
		}
		return records[idx], s.def.msgs.found, nil
	}

	if s.hasSecondaryKey(payload) {
		return s.readBySecondary(records, payload)
	}

	if len(payload) == 0 {
		return records, s.def.msgs.listed, nil
	}
	return nil, s.def.msgs.invalidRead, fmt.Errorf("%w: %v", ErrInvalidRead, payload)
}

func (s *EntityService) hasSecondaryKey(payload models.Record) bool {
	for _, field := range s.def.secondary.fields {
		if !payload.HasValue(field) {
			return false
		}
	}
	return len(s.def.secondary.fields) > 0
}

func (s *EntityService) readBySecondary(records []models.Record, payload models.Record) (interface{}, string, error) {
	sec := s.def.secondary
	key := secondaryText(payload, sec.fields)

	if sec.single {
		for _, rec := range records {
			if sec.match(rec, payload) {
				return rec, fmt.Sprintf(s.def.msgs.foundBy, key), nil
			}
		}
		return nil, s.def.msgs.notFoundBy, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	matches := make([]models.Record, 0)
	for _, rec := range records {
		if sec.match(rec, payload) {
			matches = append(matches, rec)
		}
	}
	if sec.sortByFecha && !sortByFechaDesc(matches) {
		log.WithField("collection", s.def.collection).
			Warnf("Could not sort records for %s by fecha, returning them unsorted", key)
		return matches, fmt.Sprintf(s.def.msgs.unsortedBy, key), nil
	}
	return matches, fmt.Sprintf(s.def.msgs.foundBy, key), nil
}

func (s *EntityService) update(ctx context.Context, payload models.Record) (interface{}, string, error) {
	if !payload.HasValue(models.FieldID) {
		return nil, s.def.msgs.missingID, fmt.Errorf("%w: id", ErrValidation)
	}
	records := s.store.Load(ctx, s.def.collection)
	idx := indexByID(records, payload[models.FieldID])
	if idx < 0 {
		return nil, s.def.msgs.updateNotFound, fmt.Errorf("%w: id %v", ErrNotFound, payload[models.FieldID])
	}

	for field, value := range payload.Clone() {
		records[idx][field] = value
	}
	if err := s.persist(ctx, records); err != nil {
		return nil, s.def.msgs.storageFailed, err
	}
	return records[idx], s.def.msgs.updated, nil
}

func (s *EntityService) delete(ctx context.Context, payload models.Record) (interface{}, string, error) {
	if !payload.HasValue(models.FieldID) {
		return nil, s.def.msgs.missingID, fmt.Errorf("%w: id", ErrValidation)
	}
	records := s.store.Load(ctx, s.def.collection)
	idx := indexByID(records, payload[models.FieldID])
	if idx < 0 {
		return nil, s.def.msgs.deleteNotFound, fmt.Errorf("%w: id %v", ErrNotFound, payload[models.FieldID])
	}

	id := records[idx][models.FieldID]
	records = append(records[:idx], records[idx+1:]...)
	if err := s.persist(ctx, records); err != nil {
		return nil, s.def.msgs.storageFailed, err
	}
	return models.Record{models.FieldID: id}, s.def.msgs.deleted, nil
}

func (s *EntityService) persist(ctx context.Context, records []models.Record) error {
	if err := s.store.Replace(ctx, s.def.collection, records); err != nil {
		log.WithField("collection", s.def.collection).Errorf("Error persisting collection: %v", err)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// newID returns a fresh UUID that no record in records already uses.
func newID(records []models.Record) string {
	for {
		id := uuid.NewString()
		if indexByID(records, id) < 0 {
			return id
		}
	}
}

func indexByID(records []models.Record, id interface{}) int {
	for i, rec := range records {
		if sameValue(rec[models.FieldID], id) {
			return i
		}
	}
	return -1
}

// sameValue compares two JSON scalars. Values of different types never match.
func sameValue(a, b interface{}) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func secondaryText(payload models.Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, payload.Text(field))
	}
	return strings.Join(parts, " ")
}

// sortByFechaDesc orders records newest first by comparing fecha as plain
// strings. It reports false, leaving records untouched, when some fecha is
// not a string.
func sortByFechaDesc(records []models.Record) bool {
	for _, rec := range records {
		if v, ok := rec[models.FieldFecha]; ok {
			if _, isString := v.(string); !isString {
				return false
			}
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return fechaKey(records[i]) > fechaKey(records[j])
	})
	return true
}

func fechaKey(rec models.Record) string {
	if v, ok := rec[models.FieldFecha].(string); ok {
		return v
	}
	return missingFecha
}

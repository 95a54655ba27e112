package server

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"atlas/pkg/fastjson"
	"atlas/pkg/filter"
	"atlas/pkg/keys"
	"atlas/pkg/orm"
	"atlas/pkg/utils/coerce"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

var errUnknownMapper = errors.New("unknown mapper")

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	out, err := fastjson.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		out = []byte(`{"success":false,"error":"INTERNAL","message":"encoding failed"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(out)
}

func writeData(w http.ResponseWriter, data interface{}) {
	body := envelope{Success: true, Data: data}
	if rows, ok := data.([]keys.Record); ok {
		n := len(rows)
		body.Count = &n
	}
	writeJSON(w, http.StatusOK, body)
}

// writeErr maps orm errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUnknownMapper), orm.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, envelope{Error: "NOT_FOUND", Message: err.Error()})
	case orm.IsConfigurationError(err), errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, envelope{Error: "BAD_REQUEST", Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "INTERNAL", Message: err.Error()})
	}
}

func (s *Server) mapper(r *http.Request) (*orm.Mapper, error) {
	name := chi.URLParam(r, "mapper")
	m, ok := s.registry.Get(name)
	if !ok {
		return nil, errors.Wrapf(errUnknownMapper, "%q", name)
	}
	return m, nil
}

func (s *Server) listMappers(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]string)
	for _, name := range s.registry.Names() {
		m, _ := s.registry.Get(name)
		out[name] = m.RelationNames()
	}
	writeData(w, out)
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	m, err := s.mapper(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	p, err := parseListParams(r.URL.Query())
	if err != nil {
		writeErr(w, err)
		return
	}

	rows, err := p.apply(m).Fetch(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if p.filter != nil {
		if rows, err = p.filter.Apply(rows); err != nil {
			writeErr(w, errors.Wrap(errBadRequest, err.Error()))
			return
		}
	}
	writeData(w, rows)
}

func (s *Server) find(w http.ResponseWriter, r *http.Request) {
	m, err := s.mapper(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	p, err := parseListParams(r.URL.Query())
	if err != nil {
		writeErr(w, err)
		return
	}

	id := parseID(m, chi.URLParam(r, "id"))
	rec, err := m.With(p.with...).Require().Find(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, rec)
}

// related loads one relation of a single record, honouring list parameters
// on the related side.
func (s *Server) related(w http.ResponseWriter, r *http.Request) {
	m, err := s.mapper(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	p, err := parseListParams(r.URL.Query())
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx := r.Context()
	parent, err := m.Require().Find(ctx, parseID(m, chi.URLParam(r, "id")))
	if err != nil {
		writeErr(w, err)
		return
	}
	rel, err := m.GetRelation(chi.URLParam(r, "relation"))
	if errors.Is(err, orm.ErrUnknownRelation) {
		writeJSON(w, http.StatusNotFound, envelope{Error: "NOT_FOUND", Message: err.Error()})
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	scoped, err := rel.Of(parent)
	if err != nil {
		writeErr(w, err)
		return
	}
	scoped = p.apply(scoped)

	if rel.IsSingle() {
		rec, err := scoped.First(ctx)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, rec)
		return
	}

	rows, err := scoped.Fetch(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	if p.filter != nil {
		if rows, err = p.filter.Apply(rows); err != nil {
			writeErr(w, errors.Wrap(errBadRequest, err.Error()))
			return
		}
	}
	writeData(w, rows)
}

var errBadRequest = errors.New("bad request")

// orderColumn accepts "col" or "table.col". Anything else would reach the
// builder as raw SQL.
var orderColumn = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type listParams struct {
	with   []interface{}
	order  []string
	limit  int
	offset int
	filter *filter.Filter
}

// parseListParams reads with, order, limit, offset and filter. with and
// order accept repeated or comma separated values; "-col" orders descending.
func parseListParams(q map[string][]string) (listParams, error) {
	var p listParams
	for _, raw := range q["with"] {
		for _, spec := range strings.Split(raw, ",") {
			if spec = strings.TrimSpace(spec); spec != "" {
				p.with = append(p.with, spec)
			}
		}
	}
	for _, raw := range q["order"] {
		for _, col := range strings.Split(raw, ",") {
			if col = strings.TrimSpace(col); col == "" {
				continue
			}
			if !orderColumn.MatchString(strings.TrimPrefix(col, "-")) {
				return p, errors.Wrapf(errBadRequest, "invalid order column %q", col)
			}
			p.order = append(p.order, col)
		}
	}

	var err error
	if v := first(q, "limit"); v != "" {
		if p.limit, err = coerce.ToInt(v); err != nil || p.limit < 0 {
			return p, errors.Wrapf(errBadRequest, "invalid limit %q", v)
		}
	}
	if v := first(q, "offset"); v != "" {
		if p.offset, err = coerce.ToInt(v); err != nil || p.offset < 0 {
			return p, errors.Wrapf(errBadRequest, "invalid offset %q", v)
		}
	}
	if v := first(q, "filter"); v != "" {
		if p.filter, err = filter.Compile(v); err != nil {
			return p, errors.Wrap(errBadRequest, err.Error())
		}
	}
	return p, nil
}

func (p listParams) apply(m *orm.Mapper) *orm.Mapper {
	return m.WithMutations(func(m *orm.Mapper) {
		m.With(p.with...)
		for _, col := range p.order {
			if strings.HasPrefix(col, "-") {
				m.OrderBy(strings.TrimPrefix(col, "-"), "desc")
			} else {
				m.OrderBy(col, "asc")
			}
		}
		if p.limit > 0 {
			m.Limit(p.limit)
		}
		if p.offset > 0 {
			m.Offset(p.offset)
		}
	})
}

func first(q map[string][]string, key string) string {
	if v := q[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// parseID turns a path segment into an identity. Composite ids are comma
// separated in key order; numeric parts become int64.
func parseID(m *orm.Mapper, raw string) interface{} {
	if !m.GetIdAttribute().IsComposite() {
		return parseIDPart(raw)
	}
	parts := strings.Split(raw, ",")
	tuple := make([]interface{}, len(parts))
	for i, part := range parts {
		tuple[i] = parseIDPart(part)
	}
	return tuple
}

func parseIDPart(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

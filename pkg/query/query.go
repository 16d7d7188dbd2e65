// Package query implements the Query Engine: it parses filter, sort,
// and pagination parameters, applies visibility scoping, and produces
// a page of artifacts plus the first/next listing URLs. It reads
// candidate rows from the Persistence Gateway and does the rest
// in-memory — the gateway itself stays policy-free.
package query

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blang/semver"

	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/lifecycle"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/storage"
	"github.com/cuemby/relic/pkg/types"
)

// DefaultLimit and MaxLimit bound a page when the client omits or
// over-requests a limit.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var reservedParams = map[string]bool{"sort": true, "marker": true, "limit": true}

// intrinsicSortable is the set of intrinsic fields a sort key may name
// besides a custom attribute flagged sortable in its type descriptor.
var intrinsicSortable = map[string]bool{
	"name": true, "version": true, "status": true, "visibility": true,
	"created_at": true, "updated_at": true, "activated_at": true,
}

// Result is one page of a listing.
type Result struct {
	Items []*types.Artifact
	First string
	Next  string
}

// filterClause is one parsed `attr=[op:]value` (or dotted map-entry)
// constraint. Clauses for the same key conjoin.
type filterClause struct {
	attr   string
	mapKey string // non-empty for "attr.key=value"
	op     registry.FilterOp
	value  string
}

type sortKey struct {
	attr string
	desc bool
}

// List parses q against desc, loads every non-deleted row of typeName
// from gw, scopes it to what caller may read, filters, sorts, and
// slices out one page starting at the requested marker.
func List(ctx context.Context, caller types.Caller, desc *registry.TypeDescriptor, gw storage.Gateway, typeName string, q url.Values, baseURL string) (*Result, error) {
	clauses, err := parseFilters(desc, q)
	if err != nil {
		return nil, err
	}
	keys, err := parseSort(desc, q.Get("sort"))
	if err != nil {
		return nil, err
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return nil, err
	}

	rows, err := gw.ListArtifacts(ctx, typeName)
	if err != nil {
		return nil, err
	}

	visible := rows[:0:0]
	for _, a := range rows {
		if lifecycle.CanRead(caller, a) {
			visible = append(visible, a)
		}
	}

	filtered := visible[:0:0]
	for _, a := range visible {
		ok, err := matchesAll(desc, a, clauses)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, a)
		}
	}

	sortArtifacts(desc, filtered, keys)

	marker := q.Get("marker")
	start := 0
	if marker != "" {
		idx := indexOfID(filtered, marker)
		if idx < 0 {
			start = len(filtered)
		} else {
			start = idx + 1
		}
	}

	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	var page []*types.Artifact
	if start < len(filtered) {
		page = filtered[start:end]
	}

	result := &Result{Items: page, First: canonicalURL(baseURL, q)}
	if end < len(filtered) && len(page) > 0 {
		result.Next = nextURL(baseURL, q, page[len(page)-1].ID)
	}
	return result, nil
}

func indexOfID(rows []*types.Artifact, id string) int {
	for i, a := range rows {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apierr.Newf(apierr.BadRequest, "invalid limit %q", raw)
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}

func canonicalURL(base string, q url.Values) string {
	clean := url.Values{}
	for k, vs := range q {
		if k == "marker" {
			continue
		}
		clean[k] = vs
	}
	return composeURL(base, clean)
}

func nextURL(base string, q url.Values, marker string) string {
	next := url.Values{}
	for k, vs := range q {
		next[k] = vs
	}
	next.Set("marker", marker)
	return composeURL(base, next)
}

func composeURL(base string, q url.Values) string {
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// parseFilters extracts every non-reserved query key as one or more
// filter clauses.
func parseFilters(desc *registry.TypeDescriptor, q url.Values) ([]filterClause, error) {
	var clauses []filterClause
	for key, values := range q {
		if reservedParams[key] {
			continue
		}
		for _, raw := range values {
			c, err := parseOneFilter(desc, key, raw)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		}
	}
	return clauses, nil
}

func parseOneFilter(desc *registry.TypeDescriptor, key, raw string) (filterClause, error) {
	attr := key
	mapKey := ""
	if i := strings.Index(key, "."); i >= 0 {
		attr, mapKey = key[:i], key[i+1:]
	}

	if attr == "tags" || attr == "tags-any" {
		return filterClause{attr: attr, op: registry.FilterEQ, value: raw}, nil
	}

	op := registry.FilterEQ
	value := raw
	if i := strings.Index(raw, ":"); i >= 0 && isKnownOp(raw[:i]) {
		op = registry.FilterOp(raw[:i])
		value = raw[i+1:]
	}

	if err := checkFilterAllowed(desc, attr, op); err != nil {
		return filterClause{}, err
	}

	return filterClause{attr: attr, mapKey: mapKey, op: op, value: value}, nil
}

func isKnownOp(s string) bool {
	switch registry.FilterOp(s) {
	case registry.FilterEQ, registry.FilterNEQ, registry.FilterIN, registry.FilterGT, registry.FilterGTE, registry.FilterLT, registry.FilterLTE:
		return true
	}
	return false
}

var intrinsicFilterOps = map[string][]registry.FilterOp{
	"name":       registry.AllFilterOps,
	"version":    registry.AllFilterOps,
	"status":     {registry.FilterEQ, registry.FilterNEQ, registry.FilterIN},
	"visibility": {registry.FilterEQ},
	"owner":      {registry.FilterEQ},
}

func checkFilterAllowed(desc *registry.TypeDescriptor, attr string, op registry.FilterOp) error {
	if attr == "visibility" && op != registry.FilterEQ {
		return apierr.Newf(apierr.BadRequest, "visibility only accepts the eq operator")
	}
	if ops, ok := intrinsicFilterOps[attr]; ok {
		if !opAllowed(ops, op) {
			return apierr.Newf(apierr.BadRequest, "operator %q is not permitted on %q", op, attr)
		}
		return nil
	}
	ad, ok := desc.Attribute(attr)
	if !ok {
		return apierr.Newf(apierr.BadRequest, "unknown filter attribute %q", attr)
	}
	if !opAllowed(ad.FilterOps, op) {
		return apierr.Newf(apierr.BadRequest, "operator %q is not permitted on %q", op, attr)
	}
	return nil
}

func opAllowed(ops []registry.FilterOp, op registry.FilterOp) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func matchesAll(desc *registry.TypeDescriptor, a *types.Artifact, clauses []filterClause) (bool, error) {
	for _, c := range clauses {
		ok, err := matchesOne(desc, a, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchesOne(desc *registry.TypeDescriptor, a *types.Artifact, c filterClause) (bool, error) {
	switch c.attr {
	case "tags":
		if c.value == "" {
			return true, nil
		}
		return containsAll(a.Tags, splitCSV(c.value)), nil
	case "tags-any":
		return intersects(a.Tags, splitCSV(c.value)), nil
	case "name":
		return compareString(a.Name, c.op, c.value), nil
	case "owner":
		return compareString(a.Owner, c.op, c.value), nil
	case "status":
		return compareString(string(a.Status), c.op, c.value), nil
	case "visibility":
		if c.value != string(types.VisibilityPrivate) && c.value != string(types.VisibilityPublic) {
			return false, nil
		}
		return string(a.Visibility) == c.value, nil
	case "version":
		return compareSemver(a.Version, c.op, c.value)
	}

	ad, ok := desc.Attribute(c.attr)
	if !ok {
		return false, apierr.Newf(apierr.BadRequest, "unknown filter attribute %q", c.attr)
	}
	v, present := a.Properties[c.attr]
	if c.mapKey != "" {
		if !present || v.Kind != types.KindDict {
			return false, nil
		}
		entry, ok := v.Dict[c.mapKey]
		if !ok {
			return false, nil
		}
		return compareScalarValue(entry, c.op, c.value, ad.ScalarKind), nil
	}
	if !present {
		return c.value == "" && c.op == registry.FilterEQ, nil
	}
	if c.value == "" {
		return false, nil
	}
	switch v.Kind {
	case types.KindList:
		for _, el := range v.List {
			if compareScalarValue(el, registry.FilterEQ, c.value, ad.ScalarKind) {
				return c.op == registry.FilterEQ, nil
			}
		}
		return c.op == registry.FilterNEQ, nil
	default:
		return compareScalarValue(v, c.op, c.value, ad.ScalarKind), nil
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func intersects(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

func compareString(have string, op registry.FilterOp, value string) bool {
	switch op {
	case registry.FilterEQ:
		return have == value
	case registry.FilterNEQ:
		return have != value
	case registry.FilterIN:
		for _, v := range splitCSV(value) {
			if have == v {
				return true
			}
		}
		return false
	case registry.FilterGT:
		return have > value
	case registry.FilterGTE:
		return have >= value
	case registry.FilterLT:
		return have < value
	case registry.FilterLTE:
		return have <= value
	}
	return false
}

func compareSemver(have string, op registry.FilterOp, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	hv, err := semver.Parse(have)
	if err != nil {
		return false, nil
	}
	wv, err := semver.Parse(value)
	if err != nil {
		return false, apierr.Newf(apierr.BadRequest, "invalid version filter value %q", value)
	}
	cmp := hv.Compare(wv)
	switch op {
	case registry.FilterEQ:
		return cmp == 0, nil
	case registry.FilterNEQ:
		return cmp != 0, nil
	case registry.FilterGT:
		return cmp > 0, nil
	case registry.FilterGTE:
		return cmp >= 0, nil
	case registry.FilterLT:
		return cmp < 0, nil
	case registry.FilterLTE:
		return cmp <= 0, nil
	case registry.FilterIN:
		for _, v := range splitCSV(value) {
			pv, err := semver.Parse(v)
			if err == nil && hv.Compare(pv) == 0 {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func compareScalarValue(v types.AttributeValue, op registry.FilterOp, raw string, kind registry.ScalarKind) bool {
	switch kind {
	case registry.ScalarInt:
		want, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}
		return compareOrdered(float64(v.I), op, float64(want))
	case registry.ScalarFloat:
		want, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		return compareOrdered(v.F, op, want)
	case registry.ScalarBool:
		want, err := strconv.ParseBool(raw)
		if err != nil {
			return false
		}
		if op == registry.FilterNEQ {
			return v.B != want
		}
		return v.B == want
	default:
		return compareString(v.S, op, raw)
	}
}

func compareOrdered(have float64, op registry.FilterOp, want float64) bool {
	switch op {
	case registry.FilterEQ:
		return have == want
	case registry.FilterNEQ:
		return have != want
	case registry.FilterGT:
		return have > want
	case registry.FilterGTE:
		return have >= want
	case registry.FilterLT:
		return have < want
	case registry.FilterLTE:
		return have <= want
	}
	return false
}

// parseSort resolves "k1:dir,k2:dir" into an ordered key list, appending
// the mandatory "id desc" tiebreak. At most two keys other than "name"
// are permitted, and every key must be sortable.
func parseSort(desc *registry.TypeDescriptor, raw string) ([]sortKey, error) {
	var keys []sortKey
	nonName := 0
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			attr, dir := part, "asc"
			if i := strings.Index(part, ":"); i >= 0 {
				attr, dir = part[:i], part[i+1:]
			}
			if dir != "asc" && dir != "desc" {
				return nil, apierr.Newf(apierr.BadRequest, "invalid sort direction %q", dir)
			}
			if err := checkSortable(desc, attr); err != nil {
				return nil, err
			}
			if attr != "name" {
				nonName++
			}
			keys = append(keys, sortKey{attr: attr, desc: dir == "desc"})
		}
	}
	if nonName > 2 {
		return nil, apierr.Newf(apierr.BadRequest, "at most two non-name sort keys are permitted")
	}
	keys = append(keys, sortKey{attr: "id", desc: true})
	return keys, nil
}

func checkSortable(desc *registry.TypeDescriptor, attr string) error {
	if intrinsicSortable[attr] {
		return nil
	}
	ad, ok := desc.Attribute(attr)
	if !ok {
		return apierr.Newf(apierr.BadRequest, "unknown sort attribute %q", attr)
	}
	if !ad.Sortable {
		return apierr.Newf(apierr.BadRequest, "attribute %q is not sortable", attr)
	}
	return nil
}

func sortArtifacts(desc *registry.TypeDescriptor, rows []*types.Artifact, keys []sortKey) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareBy(desc, rows[i], rows[j], k.attr)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareBy(desc *registry.TypeDescriptor, a, b *types.Artifact, attr string) int {
	switch attr {
	case "id":
		return strings.Compare(a.ID, b.ID)
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "visibility":
		return strings.Compare(string(a.Visibility), string(b.Visibility))
	case "version":
		av, aerr := semver.Parse(a.Version)
		bv, berr := semver.Parse(b.Version)
		if aerr != nil || berr != nil {
			return strings.Compare(a.Version, b.Version)
		}
		return av.Compare(bv)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "activated_at":
		return compareTimePtr(a.ActivatedAt, b.ActivatedAt)
	}

	ad, ok := desc.Attribute(attr)
	if !ok {
		return 0
	}
	av, aok := a.Properties[attr]
	bv, bok := b.Properties[attr]
	if !aok && !bok {
		return 0
	}
	if !aok {
		return -1
	}
	if !bok {
		return 1
	}
	switch ad.ScalarKind {
	case registry.ScalarInt:
		return compareInt64(av.I, bv.I)
	case registry.ScalarFloat:
		return compareFloat64(av.F, bv.F)
	default:
		return strings.Compare(av.S, bv.S)
	}
}

func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

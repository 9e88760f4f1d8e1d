package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ResourceKind identifies one of the manageable resource kinds.
// The set is closed; see AllResourceKinds.
type ResourceKind string

const (
	KindWarehouse         ResourceKind = "warehouse"
	KindDatabase          ResourceKind = "database"
	KindSchema            ResourceKind = "schema"
	KindRole              ResourceKind = "role"
	KindGrant             ResourceKind = "grant"
	KindResourceMonitor   ResourceKind = "resource_monitor"
	KindTag               ResourceKind = "tag"
	KindMaskingPolicy     ResourceKind = "masking_policy"
	KindTagAttachment     ResourceKind = "tag_attachment"
	KindMaskingAttachment ResourceKind = "masking_attachment"
	KindShare             ResourceKind = "share"
)

var allResourceKinds = []ResourceKind{
	KindWarehouse,
	KindDatabase,
	KindSchema,
	KindRole,
	KindGrant,
	KindResourceMonitor,
	KindTag,
	KindMaskingPolicy,
	KindTagAttachment,
	KindMaskingAttachment,
	KindShare,
}

// AllResourceKinds returns every resource kind in declaration order.
func AllResourceKinds() []ResourceKind {
	out := make([]ResourceKind, len(allResourceKinds))
	copy(out, allResourceKinds)
	return out
}

// Valid reports whether k belongs to the closed resource kind set.
func (k ResourceKind) Valid() bool {
	for _, known := range allResourceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsRelationship reports whether k models an edge between two objects
// rather than an object. Relationship kinds are never altered in place.
func (k ResourceKind) IsRelationship() bool {
	switch k {
	case KindGrant, KindTagAttachment, KindMaskingAttachment:
		return true
	default:
		return false
	}
}

// CreateAction returns the verb used when a resource of kind k must exist.
func (k ResourceKind) CreateAction() ActionKind {
	switch k {
	case KindGrant:
		return ActionGrant
	case KindTagAttachment:
		return ActionAttachTag
	case KindMaskingAttachment:
		return ActionAttachMask
	default:
		return ActionCreate
	}
}

// ChangeAction returns the verb used when an existing resource of kind k differs
// from its desired attributes.
func (k ResourceKind) ChangeAction() ActionKind {
	if k.IsRelationship() {
		return k.CreateAction()
	}
	return ActionAlter
}

// DropAction returns the verb used when a resource of kind k must be removed.
func (k ResourceKind) DropAction() ActionKind {
	switch k {
	case KindGrant:
		return ActionRevoke
	case KindTagAttachment:
		return ActionDetachTag
	case KindMaskingAttachment:
		return ActionDetachMask
	default:
		return ActionDrop
	}
}

// ParseResourceKind converts s to a ResourceKind, rejecting unknown values.
func ParseResourceKind(s string) (ResourceKind, error) {
	k := ResourceKind(s)
	if !k.Valid() {
		return "", NewUnsupportedKindError(k)
	}
	return k, nil
}

// ActionKind is the verb of a plan action.
type ActionKind string

const (
	ActionCreate     ActionKind = "CREATE"
	ActionAlter      ActionKind = "ALTER"
	ActionDrop       ActionKind = "DROP"
	ActionGrant      ActionKind = "GRANT"
	ActionRevoke     ActionKind = "REVOKE"
	ActionAttachTag  ActionKind = "ATTACH_TAG"
	ActionDetachTag  ActionKind = "DETACH_TAG"
	ActionAttachMask ActionKind = "ATTACH_MASK"
	ActionDetachMask ActionKind = "DETACH_MASK"
)

var allActionKinds = []ActionKind{
	ActionCreate,
	ActionAlter,
	ActionDrop,
	ActionGrant,
	ActionRevoke,
	ActionAttachTag,
	ActionDetachTag,
	ActionAttachMask,
	ActionDetachMask,
}

// Valid reports whether a belongs to the closed action kind set.
func (a ActionKind) Valid() bool {
	for _, known := range allActionKinds {
		if a == known {
			return true
		}
	}
	return false
}

// IsDropLike reports whether a removes a resource from state.
func (a ActionKind) IsDropLike() bool {
	switch a {
	case ActionDrop, ActionRevoke, ActionDetachTag, ActionDetachMask:
		return true
	default:
		return false
	}
}

// IsCreateLike reports whether a upserts a resource into state.
func (a ActionKind) IsCreateLike() bool {
	return a.Valid() && !a.IsDropLike()
}

// Details is the attribute payload of a resource, keyed by field name.
// Values are JSON-shaped: strings, float64, bool, nil, []any and map[string]any.
type Details map[string]any

// NormalizeDetails converts v (a struct, map or Details) into its JSON-shaped form.
func NormalizeDetails(v any) (Details, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal details: %w", err)
	}
	var out Details
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal details: %w", err)
	}
	if out == nil {
		out = Details{}
	}
	return out, nil
}

// Clone returns a deep copy of d.
func (d Details) Clone() Details {
	if d == nil {
		return nil
	}
	out := make(Details, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case Details:
		return val.Clone()
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	case []string:
		s := make([]string, len(val))
		copy(s, val)
		return s
	default:
		return val
	}
}

// String returns a string attribute, or "" when absent or not a string.
func (d Details) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// DetailsEqual compares two attribute payloads structurally. Both sides are
// normalized through JSON first, so a Go int and a decoded float64 with the
// same value compare equal, and map field order never matters.
func DetailsEqual(a, b Details) bool {
	na, err := NormalizeDetails(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeDetails(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// Resources maps each resource kind to its resources keyed by canonical key.
type Resources map[ResourceKind]map[string]Details

// Clone returns a deep copy of r.
func (r Resources) Clone() Resources {
	out := make(Resources, len(r))
	for kind, byKey := range r {
		m := make(map[string]Details, len(byKey))
		for key, details := range byKey {
			m[key] = details.Clone()
		}
		out[kind] = m
	}
	return out
}

// Kinds returns the kinds present in r, sorted.
func (r Resources) Kinds() []ResourceKind {
	kinds := make([]ResourceKind, 0, len(r))
	for kind := range r {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Count returns the number of resources of every kind.
func (r Resources) Count() int {
	n := 0
	for _, byKey := range r {
		n += len(byKey)
	}
	return n
}

// Get returns the details stored for kind/key.
func (r Resources) Get(kind ResourceKind, key string) (Details, bool) {
	byKey, ok := r[kind]
	if !ok {
		return nil, false
	}
	d, ok := byKey[key]
	return d, ok
}

// Put stores details under kind/key, creating the inner map when needed.
func (r Resources) Put(kind ResourceKind, key string, details Details) {
	byKey, ok := r[kind]
	if !ok {
		byKey = make(map[string]Details)
		r[kind] = byKey
	}
	byKey[key] = details
}

// Delete removes kind/key. Deleting a missing resource is a no-op.
func (r Resources) Delete(kind ResourceKind, key string) {
	if byKey, ok := r[kind]; ok {
		delete(byKey, key)
	}
}

// PlanAction is one change between current and desired state. Its JSON form is
// the plan payload record {action, resource_type, name, details}.
type PlanAction struct {
	Action  ActionKind   `json:"action"`
	Kind    ResourceKind `json:"resource_type"`
	Key     string       `json:"name"`
	Details Details      `json:"details"`
}

// Validate checks that the action and resource kind belong to their closed sets.
func (a PlanAction) Validate() error {
	if !a.Kind.Valid() {
		return NewUnsupportedKindError(a.Kind).WithResource(a.Key)
	}
	if !a.Action.Valid() {
		return NewPermanentError(fmt.Sprintf("unknown action %q", string(a.Action)), nil).
			WithCode(ErrCodeInvalidPayload).
			WithResource(a.ID())
	}
	if a.Key == "" {
		return NewPermanentError("plan action has an empty name", nil).
			WithCode(ErrCodeInvalidPayload).
			WithOperation(string(a.Action))
	}
	return nil
}

// ID returns "kind/key".
func (a PlanAction) ID() string {
	return string(a.Kind) + "/" + a.Key
}

// Less orders actions by (resource kind, key, action kind).
func (a PlanAction) Less(b PlanAction) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.Action < b.Action
}

// SortPlan sorts plan in place by the action ordering key.
func SortPlan(plan []PlanAction) {
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].Less(plan[j]) })
}

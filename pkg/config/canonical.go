package config

import (
	"sort"

	"github.com/wareform/wareform/pkg/engine"
)

func (Warehouse) Kind() engine.ResourceKind         { return engine.KindWarehouse }
func (Database) Kind() engine.ResourceKind          { return engine.KindDatabase }
func (Schema) Kind() engine.ResourceKind            { return engine.KindSchema }
func (Role) Kind() engine.ResourceKind              { return engine.KindRole }
func (Grant) Kind() engine.ResourceKind             { return engine.KindGrant }
func (ResourceMonitor) Kind() engine.ResourceKind   { return engine.KindResourceMonitor }
func (Tag) Kind() engine.ResourceKind               { return engine.KindTag }
func (MaskingPolicy) Kind() engine.ResourceKind     { return engine.KindMaskingPolicy }
func (TagAttachment) Kind() engine.ResourceKind     { return engine.KindTagAttachment }
func (MaskingAttachment) Kind() engine.ResourceKind { return engine.KindMaskingAttachment }
func (Share) Kind() engine.ResourceKind             { return engine.KindShare }

func (w Warehouse) Key() string        { return w.Name }
func (d Database) Key() string         { return d.Name }
func (s Schema) Key() string           { return s.Database + "." + s.Name }
func (r Role) Key() string             { return r.Name }
func (rm ResourceMonitor) Key() string { return rm.Name }
func (t Tag) Key() string              { return t.Name }
func (mp MaskingPolicy) Key() string   { return mp.Name }
func (s Share) Key() string            { return s.Name }

func (g Grant) Key() string {
	return g.Role + ":" + g.Privilege + ":" + g.OnType + ":" + g.OnName
}

func (ta TagAttachment) Key() string {
	return ta.Tag + ":" + ta.ObjectType + ":" + ta.ObjectName
}

func (ma MaskingAttachment) Key() string {
	return ma.Policy + ":" + ma.ObjectType + ":" + ma.ObjectName
}

// Specs returns every resource spec in the document, grouped by kind in
// declaration order and in file order within a kind.
func (c *DesiredConfig) Specs() []Spec {
	specs := make([]Spec, 0, c.Len())
	for _, s := range c.Warehouses {
		specs = append(specs, s)
	}
	for _, s := range c.Databases {
		specs = append(specs, s)
	}
	for _, s := range c.Schemas {
		specs = append(specs, s)
	}
	for _, s := range c.Roles {
		specs = append(specs, s)
	}
	for _, s := range c.Grants {
		specs = append(specs, s)
	}
	for _, s := range c.ResourceMonitors {
		specs = append(specs, s)
	}
	for _, s := range c.Tags {
		specs = append(specs, s)
	}
	for _, s := range c.MaskingPolicies {
		specs = append(specs, s)
	}
	for _, s := range c.TagAttachments {
		specs = append(specs, s)
	}
	for _, s := range c.MaskingAttachments {
		specs = append(specs, s)
	}
	for _, s := range c.Shares {
		specs = append(specs, s)
	}
	return specs
}

// Len returns the number of resource specs in the document.
func (c *DesiredConfig) Len() int {
	return len(c.Warehouses) + len(c.Databases) + len(c.Schemas) + len(c.Roles) +
		len(c.Grants) + len(c.ResourceMonitors) + len(c.Tags) + len(c.MaskingPolicies) +
		len(c.TagAttachments) + len(c.MaskingAttachments) + len(c.Shares)
}

// Attributes returns the JSON-shaped attribute payload of spec.
func Attributes(spec Spec) engine.Details {
	d, err := engine.NormalizeDetails(spec)
	if err != nil {
		// Specs are plain structs of strings, ints, bools and slices.
		panic(err)
	}
	return d
}

// Canonical maps the document to kind -> canonical key -> attributes. Every
// kind is present, possibly empty. When two specs share a key the later one
// wins; Validate rejects such documents unless the duplicates are identical.
func (c *DesiredConfig) Canonical() engine.Resources {
	out := make(engine.Resources, len(engine.AllResourceKinds()))
	for _, kind := range engine.AllResourceKinds() {
		out[kind] = make(map[string]engine.Details)
	}
	for _, spec := range c.Specs() {
		out[spec.Kind()][spec.Key()] = Attributes(spec)
	}
	return out
}

// ApplyDefaults fills optional fields: scaling_policy defaults to STANDARD,
// absent lists become empty, and share accounts are de-duplicated and sorted.
func (c *DesiredConfig) ApplyDefaults() {
	for i := range c.Warehouses {
		if c.Warehouses[i].ScalingPolicy == "" {
			c.Warehouses[i].ScalingPolicy = "STANDARD"
		}
	}
	for i := range c.ResourceMonitors {
		if c.ResourceMonitors[i].NotifyAtPercent == nil {
			c.ResourceMonitors[i].NotifyAtPercent = []int{}
		}
	}
	for i := range c.Tags {
		if c.Tags[i].AllowedValues == nil {
			c.Tags[i].AllowedValues = []string{}
		}
	}
	for i := range c.Shares {
		c.Shares[i].Accounts = sortedSet(c.Shares[i].Accounts)
		if c.Shares[i].SecureViews == nil {
			c.Shares[i].SecureViews = []string{}
		}
	}
}

func sortedSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

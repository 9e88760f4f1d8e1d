package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

// Built-in policy IDs.
const (
	WarehouseAutoSuspend     = "WAREHOUSE_AUTO_SUSPEND"
	NoPublicGrants           = "NO_PUBLIC_GRANTS"
	PIIMasking               = "PII_MASKING"
	WarehouseResourceMonitor = "WAREHOUSE_RESOURCE_MONITOR"
	SharesSecureViews        = "SHARES_SECURE_VIEWS"
)

// MaxAutoSuspendSeconds is the longest auto_suspend WAREHOUSE_AUTO_SUSPEND accepts.
const MaxAutoSuspendSeconds = 300

// builtinPolicy is a policy backed by a plain function over the desired config.
type builtinPolicy struct {
	id          string
	description string
	severity    Severity
	check       func(desired *config.DesiredConfig, plan []engine.PlanAction) []string
}

func (p *builtinPolicy) ID() string                { return p.id }
func (p *builtinPolicy) Description() string       { return p.description }
func (p *builtinPolicy) DefaultSeverity() Severity { return p.severity }

// Evaluate runs the check and wraps each message as a Result.
func (p *builtinPolicy) Evaluate(desired *config.DesiredConfig, plan []engine.PlanAction) []Result {
	if desired == nil {
		return nil
	}
	messages := p.check(desired, plan)
	if len(messages) == 0 {
		return nil
	}
	results := make([]Result, 0, len(messages))
	for _, msg := range messages {
		results = append(results, newResult(p, msg))
	}
	return results
}

// Builtins returns the fixed registry of built-in policies in evaluation order.
func Builtins() []Policy {
	return []Policy{
		&builtinPolicy{
			id:          WarehouseAutoSuspend,
			description: "Warehouses must auto suspend within 300 seconds",
			severity:    SeverityHigh,
			check:       checkWarehouseAutoSuspend,
		},
		&builtinPolicy{
			id:          NoPublicGrants,
			description: "No grants to PUBLIC except UTILS usage",
			severity:    SeverityHigh,
			check:       checkNoPublicGrants,
		},
		&builtinPolicy{
			id:          PIIMasking,
			description: "PII-tagged columns must have masking policies",
			severity:    SeverityMedium,
			check:       checkPIIMasking,
		},
		&builtinPolicy{
			id:          WarehouseResourceMonitor,
			description: "Resource monitors required for large warehouses",
			severity:    SeverityMedium,
			check:       checkWarehouseResourceMonitor,
		},
		&builtinPolicy{
			id:          SharesSecureViews,
			description: "Shares may only expose secure views",
			severity:    SeverityHigh,
			check:       checkSharesSecureViews,
		},
	}
}

func checkWarehouseAutoSuspend(desired *config.DesiredConfig, _ []engine.PlanAction) []string {
	var out []string
	for _, wh := range desired.Warehouses {
		if wh.AutoSuspend > MaxAutoSuspendSeconds {
			out = append(out, fmt.Sprintf("Warehouse %s auto_suspend exceeds 300s", wh.Name))
		}
	}
	return out
}

func checkNoPublicGrants(desired *config.DesiredConfig, _ []engine.PlanAction) []string {
	var out []string
	for _, g := range desired.Grants {
		if !strings.EqualFold(g.Role, "PUBLIC") {
			continue
		}
		if strings.EqualFold(g.Privilege, "USAGE") && strings.EqualFold(g.OnName, "UTILS") {
			continue
		}
		out = append(out, "PUBLIC grants must be limited to USAGE on UTILS database")
	}
	return out
}

type objectRef struct {
	objectType string
	objectName string
}

func checkPIIMasking(desired *config.DesiredConfig, _ []engine.PlanAction) []string {
	masked := make(map[objectRef]struct{}, len(desired.MaskingAttachments))
	for _, ma := range desired.MaskingAttachments {
		masked[objectRef{ma.ObjectType, ma.ObjectName}] = struct{}{}
	}

	unmasked := make(map[objectRef]struct{})
	for _, ta := range desired.TagAttachments {
		if !strings.EqualFold(ta.Tag, "PII") {
			continue
		}
		ref := objectRef{ta.ObjectType, ta.ObjectName}
		if _, ok := masked[ref]; !ok {
			unmasked[ref] = struct{}{}
		}
	}

	refs := make([]objectRef, 0, len(unmasked))
	for ref := range unmasked {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].objectType != refs[j].objectType {
			return refs[i].objectType < refs[j].objectType
		}
		return refs[i].objectName < refs[j].objectName
	})

	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, fmt.Sprintf("PII tagged object %s %s missing masking policy", ref.objectType, ref.objectName))
	}
	return out
}

var largeWarehouseSizes = map[string]bool{
	"LARGE":   true,
	"XLARGE":  true,
	"XXLARGE": true,
}

func checkWarehouseResourceMonitor(desired *config.DesiredConfig, _ []engine.PlanAction) []string {
	var out []string
	for _, wh := range desired.Warehouses {
		if !largeWarehouseSizes[wh.Size] {
			continue
		}
		if wh.ResourceMonitor == nil || *wh.ResourceMonitor == "" {
			out = append(out, fmt.Sprintf("Warehouse %s lacks resource monitor", wh.Name))
		}
	}
	return out
}

func checkSharesSecureViews(desired *config.DesiredConfig, _ []engine.PlanAction) []string {
	var out []string
	for _, share := range desired.Shares {
		if len(share.SecureViews) == 0 {
			out = append(out, fmt.Sprintf("Share %s must expose secure views only", share.Name))
		}
		for _, view := range share.SecureViews {
			if !strings.HasPrefix(strings.ToUpper(view), "SECURE_") {
				out = append(out, fmt.Sprintf("Share %s view %s is not secure", share.Name, view))
			}
		}
	}
	return out
}

package workflow

import (
	"fmt"

	"github.com/shelfline/flightrec/model"
)

// VError describes a single validation error in a template.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks templates structurally before they enter the registry.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all templates.
func (v *Validator) Validate(templates []model.WorkflowTemplate) []VError {
	var errs []VError
	seen := make(map[string]bool, len(templates))
	triggers := make(map[string]bool, len(templates))

	for i, tpl := range templates {
		prefix := fmt.Sprintf("templates[%d]", i)

		if tpl.ID == "" {
			errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
		} else if seen[tpl.ID] {
			errs = append(errs, VError{Path: prefix + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("duplicate template id %q", tpl.ID)})
		}
		seen[tpl.ID] = true

		if tpl.Trigger != "" {
			if triggers[tpl.Trigger] {
				errs = append(errs, VError{Path: prefix + ".trigger", Code: "DUPLICATE", Message: fmt.Sprintf("duplicate trigger %q", tpl.Trigger)})
			}
			triggers[tpl.Trigger] = true
		}

		if tpl.Root == nil {
			errs = append(errs, VError{Path: prefix + ".root", Code: "REQUIRED", Message: "root node is required"})
			continue
		}
		errs = append(errs, v.validateNode(prefix+".root", tpl.Root)...)
	}
	return errs
}

func (v *Validator) validateNode(prefix string, node *model.TemplateNode) []VError {
	var errs []VError

	switch node.Kind {
	case model.NodeWebhook, model.NodeStep, model.NodeDecision, model.NodeOutcome:
	case "":
		errs = append(errs, VError{Path: prefix + ".kind", Code: "REQUIRED", Message: "kind is required"})
	default:
		errs = append(errs, VError{Path: prefix + ".kind", Code: "INVALID", Message: fmt.Sprintf("unknown node kind %q", node.Kind)})
	}

	if node.Kind == model.NodeStep && node.FunctionName == "" {
		errs = append(errs, VError{Path: prefix + ".function_name", Code: "REQUIRED", Message: "step nodes must name a function"})
	}

	if node.Kind == model.NodeDecision {
		if len(node.Branches) == 0 {
			errs = append(errs, VError{Path: prefix + ".branches", Code: "REQUIRED", Message: "decision nodes need at least one branch"})
		}
		labels := make(map[string]bool, len(node.Branches))
		for i, branch := range node.Branches {
			bp := fmt.Sprintf("%s.branches[%d]", prefix, i)
			if branch.Label == "" {
				errs = append(errs, VError{Path: bp + ".label", Code: "REQUIRED", Message: "branch label is required"})
			} else if labels[branch.Label] {
				errs = append(errs, VError{Path: bp + ".label", Code: "DUPLICATE", Message: fmt.Sprintf("duplicate branch label %q", branch.Label)})
			}
			labels[branch.Label] = true
			if branch.Node != nil {
				errs = append(errs, v.validateNode(bp+".node", branch.Node)...)
			}
		}
	} else if len(node.Branches) > 0 {
		errs = append(errs, VError{Path: prefix + ".branches", Code: "INVALID", Message: "only decision nodes may carry branches"})
	}

	if node.Next != nil {
		errs = append(errs, v.validateNode(prefix+".next", node.Next)...)
	}
	return errs
}

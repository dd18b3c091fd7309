package workflow

import (
	"fmt"
	"strings"

	"github.com/shelfline/flightrec/model"
)

// defaultOutcomeField is consulted on decision nodes that do not name one.
const defaultOutcomeField = "outcome"

// Match overlays a reconstructed execution tree onto a workflow template and
// annotates each template node with whether that run took it. It is a pure
// function of its inputs and never guesses: a step that cannot be located in
// the trace leaves its subtree not_taken.
//
// States: taken means the node's step completed; current means the run
// reached the node but did not complete it (still started, or failed there);
// not_taken means the run never reached it.
func Match(tpl model.WorkflowTemplate, tree *model.TraceTree) *model.MatchResult {
	result := &model.MatchResult{TemplateID: tpl.ID}
	if tree != nil {
		result.TraceID = tree.Trace.TraceID
	}
	if tpl.Root == nil {
		return result
	}

	m := &matcher{index: indexSteps(tree)}
	if tree != nil {
		m.traceStatus = tree.Trace.Status
	}
	result.Root = m.walk(tpl.Root, tree != nil)
	return result
}

type matcher struct {
	index       map[string]model.StepWithDetails
	traceStatus string
}

// walk mirrors the template subtree into an annotated one. reached reports
// whether the run's path includes this node's parent; once false, the whole
// subtree is not_taken.
func (m *matcher) walk(node *model.TemplateNode, reached bool) *model.MatchedNode {
	out := &model.MatchedNode{
		ID:        node.ID,
		Kind:      node.Kind,
		Label:     node.Label,
		Condition: node.Condition,
		State:     model.MatchNotTaken,
	}

	continueNext := false
	switch node.Kind {
	case model.NodeWebhook:
		if reached {
			out.State = model.MatchTaken
			continueNext = true
		}

	case model.NodeStep:
		if reached {
			continueNext = m.matchStep(node, out)
		}

	case model.NodeDecision:
		taken := ""
		if reached {
			taken = m.matchDecision(node, out)
		}
		for _, branch := range node.Branches {
			matched := model.MatchedBranch{Label: branch.Label}
			if branch.Node != nil {
				matched.Node = m.walk(branch.Node, taken != "" && strings.EqualFold(branch.Label, taken))
			}
			out.Branches = append(out.Branches, matched)
		}

	case model.NodeOutcome:
		if reached {
			if m.traceStatus == model.StatusStarted {
				out.State = model.MatchCurrent
			} else {
				out.State = model.MatchTaken
			}
		}
	}

	if node.Next != nil {
		out.Next = m.walk(node.Next, continueNext)
	}
	return out
}

// matchStep annotates a step node from the recorded step, if any, and
// reports whether the run proceeded past it.
func (m *matcher) matchStep(node *model.TemplateNode, out *model.MatchedNode) bool {
	step, ok := m.lookup(node)
	if !ok {
		return false
	}
	out.StepID = step.StepID
	out.StepStatus = step.Status

	switch step.Status {
	case model.StatusCompleted, model.StatusSkipped:
		out.State = model.MatchTaken
		return true
	default:
		// started or failed: the run is, or died, here.
		out.State = model.MatchCurrent
		return false
	}
}

// matchDecision annotates a decision node and returns the label of the
// branch the run took, or "" when it cannot be determined.
func (m *matcher) matchDecision(node *model.TemplateNode, out *model.MatchedNode) string {
	step, ok := m.lookup(node)
	if !ok {
		return ""
	}
	out.StepID = step.StepID
	out.StepStatus = step.Status

	if step.Status != model.StatusCompleted {
		out.State = model.MatchCurrent
		return ""
	}
	out.State = model.MatchTaken

	field := node.OutcomeField
	if field == "" {
		field = defaultOutcomeField
	}
	label := outcomeLabel(step.Output, field)
	out.Taken = label
	return label
}

// lookup finds the recorded step a template node refers to, by
// service+function or function alone.
func (m *matcher) lookup(node *model.TemplateNode) (model.StepWithDetails, bool) {
	if node.FunctionName == "" {
		return model.StepWithDetails{}, false
	}
	if node.ServiceName != "" {
		if step, ok := m.index[stepKey(node.ServiceName, node.FunctionName)]; ok {
			return step, true
		}
	}
	step, ok := m.index[stepKey("", node.FunctionName)]
	return step, ok
}

// indexSteps builds lookup keys for every recorded step: one qualified by
// service and one by function alone. First start wins on collision so
// repeated operations map to their earliest occurrence.
func indexSteps(tree *model.TraceTree) map[string]model.StepWithDetails {
	index := make(map[string]model.StepWithDetails)
	if tree == nil {
		return index
	}
	for _, step := range tree.Steps {
		qualified := stepKey(step.ServiceName, step.FunctionName)
		if _, ok := index[qualified]; !ok {
			index[qualified] = step
		}
		bare := stepKey("", step.FunctionName)
		if _, ok := index[bare]; !ok {
			index[bare] = step
		}
	}
	return index
}

func stepKey(service, function string) string {
	return strings.ToLower(service) + "/" + strings.ToLower(function)
}

// outcomeLabel extracts the observed outcome value from a completed step's
// output. Non-string scalars are rendered with fmt so numeric and boolean
// outcomes still match their branch labels.
func outcomeLabel(output any, field string) string {
	obj, ok := output.(map[string]any)
	if !ok {
		return ""
	}
	for k, v := range obj {
		if !strings.EqualFold(k, field) {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case nil:
			return ""
		default:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}

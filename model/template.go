package model

// Workflow template node kinds. Templates are statically authored YAML files
// describing the business workflow's shape; the tracing core only ever reads
// them.
const (
	NodeWebhook  = "webhook"
	NodeStep     = "step"
	NodeDecision = "decision"
	NodeOutcome  = "outcome"
)

// Match states assigned to template nodes when a trace is overlaid on a
// template.
const (
	MatchTaken    = "taken"
	MatchCurrent  = "current"
	MatchNotTaken = "not_taken"
)

// WorkflowTemplate is the root of one statically authored workflow
// description. Trigger is the endpoint whose traces this template explains.
type WorkflowTemplate struct {
	ID      string        `yaml:"id"      json:"id"`
	Name    string        `yaml:"name"    json:"name"`
	Trigger string        `yaml:"trigger" json:"trigger"`
	Root    *TemplateNode `yaml:"root"    json:"root"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// TemplateNode is one node of a workflow template tree.
//
// For kind "step" the node names the instrumented operation it corresponds
// to: ServiceName/FunctionName match the step row recorded by that operation.
// For kind "decision" the node carries a Condition description and labeled
// Branches; the branch whose label equals the recorded outcome is the one
// the run took.
type TemplateNode struct {
	ID           string           `yaml:"id"            json:"id"`
	Kind         string           `yaml:"kind"          json:"kind"`
	Label        string           `yaml:"label"         json:"label"`
	ServiceName  string           `yaml:"service_name"  json:"service_name,omitempty"`
	FunctionName string           `yaml:"function_name" json:"function_name,omitempty"`
	Condition    string           `yaml:"condition"     json:"condition,omitempty"`
	OutcomeField string           `yaml:"outcome_field" json:"outcome_field,omitempty"`
	Branches     []TemplateBranch `yaml:"branches"      json:"branches,omitempty"`
	Next         *TemplateNode    `yaml:"next"          json:"next,omitempty"`
}

// TemplateBranch is one labeled branch out of a decision node.
type TemplateBranch struct {
	Label string        `yaml:"label" json:"label"`
	Node  *TemplateNode `yaml:"node"  json:"node"`
}

// MatchedNode is a template node annotated with the state a specific run
// gave it, preserving the tree shape for display.
type MatchedNode struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Label      string          `json:"label"`
	State      string          `json:"state"`
	StepID     string          `json:"step_id,omitempty"`
	StepStatus string          `json:"step_status,omitempty"`
	Condition  string          `json:"condition,omitempty"`
	Taken      string          `json:"taken_branch,omitempty"`
	Branches   []MatchedBranch `json:"branches,omitempty"`
	Next       *MatchedNode    `json:"next,omitempty"`
}

// MatchedBranch is a labeled branch annotated with match results.
type MatchedBranch struct {
	Label string       `json:"label"`
	Node  *MatchedNode `json:"node"`
}

// MatchResult is the outcome of overlaying one trace on one template.
type MatchResult struct {
	TemplateID string       `json:"template_id"`
	TraceID    string       `json:"trace_id"`
	Root       *MatchedNode `json:"root"`
}

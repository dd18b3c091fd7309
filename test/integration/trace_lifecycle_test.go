package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shelfline/flightrec/internal/recorder"
	"github.com/shelfline/flightrec/model"
)

func intakeTemplate() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		ID:      "matter-intake",
		Name:    "Matter intake",
		Trigger: "/hooks/clio/matter-created",
		Root: &model.TemplateNode{
			ID:    "webhook",
			Kind:  "webhook",
			Label: "Matter created",
			Next: &model.TemplateNode{
				ID:           "sync",
				Kind:         "step",
				Label:        "Sync matter",
				ServiceName:  "matters",
				FunctionName: "syncMatter",
			},
		},
	}
}

// recordRun drives a full instrumented automation run through the recorder:
// one step wrapping one external API call.
func recordRun(t *testing.T, h *TestHarness, fail bool) string {
	t.Helper()
	ctx := context.Background()
	rec := h.Recorder

	traceID, _ := rec.StartTrace(ctx, recorder.TraceStart{
		Endpoint:    "/hooks/clio/matter-created",
		HTTPMethod:  "POST",
		TriggerType: model.TriggerWebhook,
		Body:        map[string]any{"matter_id": "m-100", "status": "open"},
	})

	stepID := rec.StartStep(ctx, traceID, recorder.StepStart{
		ServiceName:  "matters",
		FunctionName: "syncMatter",
		Input:        map[string]any{"matter_id": "m-100"},
	})

	detailID := rec.StartDetail(ctx, recorder.DetailStart{
		TraceID:     traceID,
		StepID:      stepID,
		DetailType:  model.DetailAPICall,
		APIProvider: "clio",
		APIEndpoint: "/api/v4/matters/m-100",
		APIMethod:   "GET",
	})

	if fail {
		rec.FailDetail(ctx, detailID, errors.New("clio: 503 service unavailable"))
		rec.FailStep(ctx, stepID, errors.New("sync aborted"))
		rec.FailTrace(ctx, traceID, errors.New("sync aborted"), http.StatusBadGateway, nil)
		return traceID
	}

	rec.CompleteDetail(ctx, detailID, http.StatusOK,
		map[string]any{"id": "m-100", "display_number": "00042-Smith"}, nil, nil)
	rec.CompleteStep(ctx, stepID, map[string]any{"synced": true})
	rec.CompleteTrace(ctx, traceID, http.StatusOK, map[string]any{"ok": true})
	return traceID
}

func TestTraceLifecycle_recordAndQuery(t *testing.T) {
	h := NewTestHarness(t, WithTemplates(intakeTemplate()))
	traceID := recordRun(t, h, false)

	var tree model.TraceTree
	h.AssertJSON(t, h.GET("/api/traces/"+traceID, ""), http.StatusOK, &tree)

	if tree.Trace.Status != model.StatusCompleted {
		t.Errorf("trace status = %q, want completed", tree.Trace.Status)
	}
	if tree.Trace.StepCount != 1 || tree.Trace.DetailCount != 1 {
		t.Errorf("counts = %d steps / %d details, want 1/1",
			tree.Trace.StepCount, tree.Trace.DetailCount)
	}
	if tree.Trace.Correlation.MatterID != "m-100" {
		t.Errorf("correlation matter_id = %q, want extracted from body",
			tree.Trace.Correlation.MatterID)
	}
	if len(tree.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(tree.Steps))
	}
	step := tree.Steps[0]
	if step.Step.FunctionName != "syncMatter" || step.Step.Status != model.StatusCompleted {
		t.Errorf("step = %s/%s", step.Step.FunctionName, step.Step.Status)
	}
	if len(step.Details) != 1 {
		t.Fatalf("details = %d, want 1", len(step.Details))
	}
	if step.Details[0].APIProvider != "clio" || step.Details[0].Status != model.StatusCompleted {
		t.Errorf("detail = %s/%s", step.Details[0].APIProvider, step.Details[0].Status)
	}
}

func TestTraceLifecycle_searchAndStats(t *testing.T) {
	h := NewTestHarness(t)
	recordRun(t, h, false)
	recordRun(t, h, true)

	var search struct {
		Items []model.Trace `json:"items"`
	}
	h.AssertJSON(t, h.GET("/api/traces/search?field=matter_id&value=m-100", ""),
		http.StatusOK, &search)
	if len(search.Items) != 2 {
		t.Errorf("search items = %d, want 2", len(search.Items))
	}

	var stats model.TraceStats
	h.AssertJSON(t, h.GET("/api/traces/stats", ""), http.StatusOK, &stats)
	if stats.Total != 2 || stats.Completed != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTraceLifecycle_failureRecorded(t *testing.T) {
	h := NewTestHarness(t)
	traceID := recordRun(t, h, true)

	var tree model.TraceTree
	h.AssertJSON(t, h.GET("/api/traces/"+traceID, ""), http.StatusOK, &tree)

	if tree.Trace.Status != model.StatusFailed {
		t.Fatalf("trace status = %q, want failed", tree.Trace.Status)
	}
	if tree.Trace.Error == nil || tree.Trace.Error.Message != "sync aborted" {
		t.Errorf("trace error = %#v", tree.Trace.Error)
	}
	if tree.Trace.ErrorCount == 0 {
		t.Error("error count = 0, want recorded errors")
	}
	if tree.Steps[0].Step.Status != model.StatusFailed {
		t.Errorf("step status = %q, want failed", tree.Steps[0].Step.Status)
	}
	if tree.Steps[0].Details[0].Status != model.StatusFailed {
		t.Errorf("detail status = %q, want failed", tree.Steps[0].Details[0].Status)
	}
}

func TestTraceLifecycle_workflowOverlay(t *testing.T) {
	h := NewTestHarness(t, WithTemplates(intakeTemplate()))
	traceID := recordRun(t, h, false)

	var body struct {
		Template string             `json:"template"`
		Match    *model.MatchResult `json:"match"`
	}
	h.AssertJSON(t, h.GET("/api/traces/"+traceID+"/workflow", ""), http.StatusOK, &body)

	if body.Template != "matter-intake" {
		t.Fatalf("template = %q, want matter-intake", body.Template)
	}
	root := body.Match.Root
	if root == nil || root.State != model.MatchTaken {
		t.Fatalf("root = %#v, want taken", root)
	}
	if root.Next == nil || root.Next.State != model.MatchTaken {
		t.Errorf("sync node = %#v, want taken", root.Next)
	}
	if root.Next.StepStatus != model.StatusCompleted {
		t.Errorf("sync step status = %q, want completed", root.Next.StepStatus)
	}
}

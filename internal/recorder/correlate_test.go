package recorder

import (
	"testing"

	"github.com/shelfline/flightrec/model"
)

func TestExtractCorrelation_top_level_aliases(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want model.CorrelationIDs
	}{
		{
			"camelCase",
			map[string]any{"contactId": "ct-1", "matterId": "mt-1"},
			model.CorrelationIDs{ContactID: "ct-1", MatterID: "mt-1"},
		},
		{
			"snake_case",
			map[string]any{"opportunity_id": "op-1", "invoice_id": "inv-1"},
			model.CorrelationIDs{OpportunityID: "op-1", InvoiceID: "inv-1"},
		},
		{
			"kebab-case",
			map[string]any{"appointment-id": "ap-1"},
			model.CorrelationIDs{AppointmentID: "ap-1"},
		},
		{
			"upper case keys",
			map[string]any{"ContactID": "ct-2"},
			model.CorrelationIDs{ContactID: "ct-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCorrelation(tt.body)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractCorrelation_nested_containers(t *testing.T) {
	body := map[string]any{
		"event": "matter.created",
		"customData": map[string]any{"matter_id": "mt-5"},
		"payload":    map[string]any{"contactId": "ct-5"},
	}

	got := ExtractCorrelation(body)
	if got.MatterID != "mt-5" {
		t.Errorf("MatterID = %q, want mt-5", got.MatterID)
	}
	if got.ContactID != "ct-5" {
		t.Errorf("ContactID = %q, want ct-5", got.ContactID)
	}
}

func TestExtractCorrelation_top_level_wins_over_nested(t *testing.T) {
	body := map[string]any{
		"contactId": "ct-top",
		"data":      map[string]any{"contact_id": "ct-nested"},
	}

	got := ExtractCorrelation(body)
	if got.ContactID != "ct-top" {
		t.Errorf("ContactID = %q, first found should win", got.ContactID)
	}
}

func TestExtractCorrelation_ignores_non_strings(t *testing.T) {
	body := map[string]any{
		"contactId": 12345,
		"matterId":  map[string]any{"id": "mt-1"},
	}

	got := ExtractCorrelation(body)
	if !got.Empty() {
		t.Errorf("non-string values must be ignored, got %+v", got)
	}
}

func TestExtractCorrelation_unknown_shapes(t *testing.T) {
	if got := ExtractCorrelation(nil); !got.Empty() {
		t.Errorf("nil body: %+v", got)
	}
	if got := ExtractCorrelation("raw text payload"); !got.Empty() {
		t.Errorf("string body: %+v", got)
	}
	if got := ExtractCorrelation([]any{"a", "b"}); !got.Empty() {
		t.Errorf("array body: %+v", got)
	}
	if got := ExtractCorrelation(map[string]any{"unrelated": "x"}); !got.Empty() {
		t.Errorf("unrelated keys: %+v", got)
	}
}

func TestExtractCorrelation_does_not_scan_two_levels(t *testing.T) {
	body := map[string]any{
		"data": map[string]any{
			"inner": map[string]any{"contactId": "ct-deep"},
		},
	}

	if got := ExtractCorrelation(body); !got.Empty() {
		t.Errorf("scan must stop one level into containers, got %+v", got)
	}
}

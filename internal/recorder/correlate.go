package recorder

import (
	"strings"

	"github.com/shelfline/flightrec/model"
)

// correlationRules map payload key spellings upstream systems are known to
// use onto correlation fields. The table is deliberately fixed: when an
// upstream renames a field the ID simply stops being extracted until an
// entry is added here. Do not extend it speculatively.
var correlationRules = []struct {
	aliases []string
	assign  func(*model.CorrelationIDs, string)
}{
	{[]string{"contactid", "contact_id", "contact-id"}, func(c *model.CorrelationIDs, v string) {
		if c.ContactID == "" {
			c.ContactID = v
		}
	}},
	{[]string{"opportunityid", "opportunity_id", "opportunity-id"}, func(c *model.CorrelationIDs, v string) {
		if c.OpportunityID == "" {
			c.OpportunityID = v
		}
	}},
	{[]string{"matterid", "matter_id", "matter-id"}, func(c *model.CorrelationIDs, v string) {
		if c.MatterID == "" {
			c.MatterID = v
		}
	}},
	{[]string{"invoiceid", "invoice_id", "invoice-id"}, func(c *model.CorrelationIDs, v string) {
		if c.InvoiceID == "" {
			c.InvoiceID = v
		}
	}},
	{[]string{"appointmentid", "appointment_id", "appointment-id"}, func(c *model.CorrelationIDs, v string) {
		if c.AppointmentID == "" {
			c.AppointmentID = v
		}
	}},
}

// Containers whose children are also scanned. Webhook payloads routinely
// nest the interesting IDs one level down under these keys.
var correlationContainers = []string{"customdata", "custom_data", "data", "payload"}

// ExtractCorrelation pulls business correlation IDs out of a trigger payload
// by the known alias table, scanning the top level first and then one level
// into known container keys. The first value found for a field wins. Unknown
// payload shapes yield an empty result, never an error.
func ExtractCorrelation(body any) model.CorrelationIDs {
	var ids model.CorrelationIDs
	obj, ok := body.(map[string]any)
	if !ok {
		return ids
	}
	scanCorrelation(obj, &ids)
	for key, value := range obj {
		if !isContainerKey(key) {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			scanCorrelation(nested, &ids)
		}
	}
	return ids
}

func scanCorrelation(obj map[string]any, ids *model.CorrelationIDs) {
	for _, rule := range correlationRules {
		for _, alias := range rule.aliases {
			if v := lookupKey(obj, alias); v != "" {
				rule.assign(ids, v)
			}
		}
	}
}

// lookupKey finds a string value under key, matching case-insensitively.
func lookupKey(obj map[string]any, key string) string {
	for k, v := range obj {
		if !strings.EqualFold(k, key) {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func isContainerKey(key string) bool {
	lower := strings.ToLower(key)
	for _, c := range correlationContainers {
		if lower == c {
			return true
		}
	}
	return false
}

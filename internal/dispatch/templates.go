package dispatch

import (
	"fmt"

	"tanbih/internal/clock"
	"tanbih/internal/domain"
	"tanbih/internal/store"
	"tanbih/internal/template"
)

// Built-in fallback used when the message_templates table has nothing
// active for a channel.
const defaultReminderTemplate = `تذكير: {{title}}
{{#if ref_number}}رقم المرجع: {{ref_number}}
{{/if}}تاريخ الانتهاء: {{due_date}} ({{days_remaining}})
{{#if deadline_label}}البند: {{deadline_label}}
{{/if}}{{#if notes}}ملاحظات: {{notes}}
{{/if}}{{item_url}}`

const reminderTemplateType = "reminder"

// pickTemplate prefers the channel's default template, then any active
// template for the channel, then the generic "all" template, then the
// built-in fallback.
func pickTemplate(templates []store.MessageTemplate, channel domain.Channel, templateType string) string {
	if text := pickStoredTemplate(templates, channel, templateType); text != "" {
		return text
	}
	return defaultReminderTemplate
}

// pickStoredTemplate resolves against the message_templates table only;
// empty means nothing matched.
func pickStoredTemplate(templates []store.MessageTemplate, channel domain.Channel, templateType string) string {
	best := func(ch string) string {
		var fallback string
		for _, t := range templates {
			if t.Channel != ch {
				continue
			}
			if templateType != "" && t.TemplateType != "" && t.TemplateType != templateType {
				continue
			}
			if t.IsDefault {
				return t.Text
			}
			if fallback == "" {
				fallback = t.Text
			}
		}
		return fallback
	}

	if text := best(string(channel)); text != "" {
		return text
	}
	return best(string(domain.ChannelAll))
}

// reminderVars builds the canonical variable set for a due reminder.
func reminderVars(rem domain.DueReminder, rcpt domain.Recipient, appBaseURL string) template.Vars {
	fields := map[string]string{
		"title":          rem.Item.Title,
		"ref_number":     rem.Item.RefNumber,
		"due_date":       rem.DueDate.In(clock.Location()).Format("02/01/2006"),
		"days":           fmt.Sprintf("%d", rem.DaysUntilDue),
		"days_remaining": daysRemainingText(rem.DaysUntilDue),
		"item_url":       appBaseURL + "/items/" + rem.Item.ID,
		"department":     rem.Item.Department,
		"category":       rem.Item.Category,
		"notes":          rem.Item.Notes,
		"deadline_label": rem.DeadlineLabel,
		"recipient_name": rcpt.Name,
	}
	return template.Vars{Fields: fields, Dynamic: rem.Item.DynamicFields}
}

// daysRemainingText renders the day offset in Arabic the way the
// dashboard shows it.
func daysRemainingText(days int) string {
	switch {
	case days < 0:
		return "منتهي"
	case days == 0:
		return "اليوم"
	case days == 1:
		return "غداً"
	case days == 2:
		return "بعد يومين"
	case days <= 10:
		return fmt.Sprintf("بعد %d أيام", days)
	default:
		return fmt.Sprintf("بعد %d يوماً", days)
	}
}

func emailSubject(rem domain.DueReminder) string {
	if rem.DeadlineLabel != "" {
		return fmt.Sprintf("تذكير بانتهاء %s - %s", rem.DeadlineLabel, rem.Item.Title)
	}
	return "تذكير بانتهاء - " + rem.Item.Title
}

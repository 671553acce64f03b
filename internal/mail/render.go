package mail

import (
	"fmt"
	"strings"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

// Render substitutes the recipient's merge tags into the campaign content
// and appends the open-tracking pixel. Unknown tags are left untouched so
// a typo is visible in the delivered mail rather than silently dropped.
func Render(subject, body string, r *domain.Recipient, trackingBaseURL string) (string, string) {
	replacer := strings.NewReplacer(
		"{{name}}", r.Name,
		"{{email}}", r.Email,
		"{{tracking_id}}", r.TrackingID,
		"{{unsubscribe_url}}", trackingBaseURL+"/track/"+r.TrackingID+"/unsubscribe",
	)

	renderedSubject := replacer.Replace(subject)
	renderedBody := replacer.Replace(body)

	if trackingBaseURL != "" {
		pixel := fmt.Sprintf(
			`<img src=%q width="1" height="1" alt="" style="display:none">`,
			trackingBaseURL+"/track/"+r.TrackingID+"/open.gif",
		)
		renderedBody += pixel
	}

	return renderedSubject, renderedBody
}

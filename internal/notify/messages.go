package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCase = cases.Title(language.English)

// ModuleCompleted is the congratulation sent when a learner finishes a module.
func ModuleCompleted(userID, moduleID, moduleTitle string) Notification {
	title := strings.TrimSpace(moduleTitle)
	if title == "" {
		title = moduleID
	}
	return Notification{
		UserID: userID,
		Kind:   KindModuleCompleted,
		Title:  "Module completed",
		Body:   fmt.Sprintf("Congratulations! You completed %q. The next module is now unlocked.", title),
		Data:   map[string]any{"moduleId": moduleID},
	}
}

// CertificateIssued announces a new certificate. tier is rendered in title
// case, so "SILVER" reads as "Silver".
func CertificateIssued(userID, tier, number string) Notification {
	name := titleCase.String(tier)
	return Notification{
		UserID: userID,
		Kind:   KindCertificateIssued,
		Title:  name + " certificate issued",
		Body:   fmt.Sprintf("Your %s certificate is ready. Certificate number: %s.", name, number),
		Data:   map[string]any{"type": tier, "certificateNumber": number},
	}
}

package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/heliosfit/gymdesk/internal/store"
)

// BuildExpiryDigest renders the daily digest of memberships expiring soon.
// The digest is sent to the gym's contact address, not to members.
func BuildExpiryDigest(gymName string, members []store.Member, now time.Time) (subject, body string) {
	subject = fmt.Sprintf("%s: %d membership(s) expiring soon", gymName, len(members))

	var b strings.Builder
	fmt.Fprintf(&b, "Memberships expiring within the next 7 days as of %s:\n\n",
		now.Format("02 Jan 2006"))
	for _, m := range members {
		expiry := "unknown"
		if m.MembershipExpiryDate != nil {
			expiry = m.MembershipExpiryDate.Format("02 Jan 2006")
		}
		fmt.Fprintf(&b, "- %s (%s), phone %s, expires %s", m.FullName, m.RegistrationNumber, m.Phone, expiry)
		if m.OutstandingBalance.IsPositive() {
			fmt.Fprintf(&b, ", outstanding balance %s", m.OutstandingBalance.String())
		}
		b.WriteString("\n")
	}
	b.WriteString("\nConsider reaching out before their plans lapse.\n")

	return subject, b.String()
}

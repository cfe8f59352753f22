package dashboard

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/heliosfit/gymdesk/internal/db"
	"github.com/heliosfit/gymdesk/internal/gymconfig"
	"github.com/heliosfit/gymdesk/internal/store"
	"github.com/heliosfit/gymdesk/internal/testutil"
)

func setupDashboardTest(t *testing.T) *db.DB {
	t.Helper()

	d := testutil.NewTestDB(t)
	Init(d.Queries)
	t.Cleanup(func() { queries = nil })

	return d
}

var memberSeq int

func seedMember(t *testing.T, d *db.DB, name, status string, expiry *time.Time, balance decimal.Decimal) store.Member {
	t.Helper()
	ctx := context.Background()

	memberSeq++
	n := strconv.Itoa(memberSeq)
	member, err := d.Queries.CreateMember(ctx, store.CreateMemberParams{
		FullName:           name,
		Phone:              "+91987654321" + n,
		Address:            "12 Test Lane",
		RegistrationNumber: "HF00" + n,
		JoinDate:           time.Now(),
		MembershipPlan:     "monthly",
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}

	if expiry != nil {
		if err := d.Queries.ApplyMemberPayment(ctx, store.ApplyMemberPaymentParams{
			ID:                   member.ID,
			Status:               status,
			OutstandingBalance:   balance,
			ExtendsMembership:    true,
			MembershipPlan:       "monthly",
			MembershipStartDate:  expiry.AddDate(0, 0, -30),
			MembershipExpiryDate: *expiry,
		}); err != nil {
			t.Fatalf("set membership: %v", err)
		}
	} else if status != "Active" || !balance.IsZero() {
		if _, err := d.Queries.UpdateMember(ctx, store.UpdateMemberParams{
			ID:             member.ID,
			FullName:       member.FullName,
			Phone:          member.Phone,
			Address:        member.Address,
			Status:         status,
			MembershipPlan: member.MembershipPlan,
		}); err != nil {
			t.Fatalf("set status: %v", err)
		}
		if !balance.IsZero() {
			if err := d.Queries.SetMemberOutstandingBalance(ctx, member.ID, balance); err != nil {
				t.Fatalf("set balance: %v", err)
			}
		}
	}
	return member
}

func TestHandleStats(t *testing.T) {
	d := setupDashboardTest(t)
	ctx := context.Background()

	soonExpiry := time.Now().AddDate(0, 0, 3)
	farExpiry := time.Now().AddDate(0, 0, 60)

	active := seedMember(t, d, "Asha Rao", "Active", &soonExpiry, decimal.Zero)
	seedMember(t, d, "Vikram Shah", "Active", &farExpiry, decimal.NewFromInt(500))
	seedMember(t, d, "Meera Iyer", "Paused", nil, decimal.Zero)
	seedMember(t, d, "Rohan Das", "Expired", nil, decimal.Zero)

	// One payment this month and one open check-in today.
	now := time.Now()
	if _, err := d.Queries.CreatePayment(ctx, store.CreatePaymentParams{
		MemberID:      active.ID,
		Amount:        decimal.NewFromInt(1000),
		PaymentDate:   now,
		PaymentMode:   "Cash",
		PlanID:        "monthly",
		PlanName:      "Monthly",
		PlanDuration:  30,
		StartDate:     now,
		ExpiryDate:    soonExpiry,
		NextDueDate:   soonExpiry.AddDate(0, 0, -7),
		ReceiptNumber: "RCP2026080001",
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	// Bucket today's check-in by the gym's timezone, the way the handler does.
	day := now.In(gymconfig.Default().Location()).Format("2006-01-02")
	if _, err := d.Queries.CreateAttendance(ctx, store.CreateAttendanceParams{
		MemberID:    active.ID,
		Day:         day,
		Session:     "morning",
		CheckInTime: now,
	}); err != nil {
		t.Fatalf("seed attendance: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil)
	recorder := httptest.NewRecorder()

	HandleStats(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}

	var env struct {
		Success bool  `json:"success"`
		Data    stats `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, recorder.Body.String())
	}
	got := env.Data

	if got.Members.Total != 4 {
		t.Errorf("total members: %d", got.Members.Total)
	}
	if got.Members.Active != 2 || got.Members.Paused != 1 || got.Members.Expired != 1 {
		t.Errorf("member breakdown: %+v", got.Members)
	}
	if got.Alerts.ExpiringThisWeek != 1 {
		t.Errorf("expiring this week: %d", got.Alerts.ExpiringThisWeek)
	}
	if got.Alerts.PendingPayments != 1 {
		t.Errorf("pending payments: %d", got.Alerts.PendingPayments)
	}
	if got.Attendance.Today != 1 || got.Attendance.CurrentlyInGym != 1 {
		t.Errorf("attendance: %+v", got.Attendance)
	}
	if !got.Revenue.ThisMonth.Equal(decimal.NewFromInt(1000)) || got.Revenue.PaymentsThisMonth != 1 {
		t.Errorf("revenue: %+v", got.Revenue)
	}
	if len(got.ExpiringList) != 1 || got.ExpiringList[0].ID != active.ID {
		t.Errorf("expiring list: %+v", got.ExpiringList)
	}
}

func TestHandleStats_EmptyDatabase(t *testing.T) {
	setupDashboardTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil)
	recorder := httptest.NewRecorder()

	HandleStats(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}

	var env struct {
		Success bool  `json:"success"`
		Data    stats `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Data.Members.Total != 0 || env.Data.Revenue.PaymentsThisMonth != 0 {
		t.Errorf("stats: %+v", env.Data)
	}
}

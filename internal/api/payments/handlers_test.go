package payments

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/heliosfit/gymdesk/internal/billing"
	"github.com/heliosfit/gymdesk/internal/db"
	"github.com/heliosfit/gymdesk/internal/store"
	"github.com/heliosfit/gymdesk/internal/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type createdPayment struct {
	Payment store.Payment `json:"payment"`
	Member  store.Member  `json:"member"`
}

func setupPaymentsTest(t *testing.T) *db.DB {
	t.Helper()

	d := testutil.NewTestDB(t)
	Init(d)
	t.Cleanup(func() { database = nil })

	return d
}

func seedMember(t *testing.T, d *db.DB) store.Member {
	t.Helper()

	member, err := d.Queries.CreateMember(context.Background(), store.CreateMemberParams{
		FullName:           "Asha Rao",
		Phone:              "+919876543210",
		Address:            "12 Test Lane",
		RegistrationNumber: "HF001",
		JoinDate:           time.Now(),
		MembershipPlan:     "monthly",
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return member
}

func postPayment(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	HandleCreate(recorder, req)
	return recorder
}

func decodeCreated(t *testing.T, recorder *httptest.ResponseRecorder) createdPayment {
	t.Helper()

	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, recorder.Body.String())
	}
	var result createdPayment
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	return result
}

func TestHandleCreate_FullPayment(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)

	body := fmt.Sprintf(`{"memberId":%d,"amount":1000,"paymentMode":"Cash","planId":"monthly"}`, member.ID)
	recorder := postPayment(t, body)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}
	result := decodeCreated(t, recorder)

	wantReceipt := billing.FormatReceiptNumber(billing.ReceiptPrefix(time.Now()), 1)
	if result.Payment.ReceiptNumber != wantReceipt {
		t.Errorf("receipt: %q, want %q", result.Payment.ReceiptNumber, wantReceipt)
	}
	if result.Payment.IsPartialPayment {
		t.Error("full payment flagged partial")
	}
	if result.Member.Status != "Active" {
		t.Errorf("member status: %q", result.Member.Status)
	}
	if result.Member.MembershipExpiryDate == nil {
		t.Fatal("membership expiry not set")
	}
	wantExpiry := result.Payment.StartDate.AddDate(0, 0, 30)
	if !result.Member.MembershipExpiryDate.Equal(wantExpiry) {
		t.Errorf("expiry: %v, want %v", result.Member.MembershipExpiryDate, wantExpiry)
	}
}

func TestHandleCreate_ReceiptSequence(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)

	body := fmt.Sprintf(`{"memberId":%d,"amount":1000,"paymentMode":"Cash","planId":"monthly"}`, member.ID)
	first := decodeCreated(t, postPayment(t, body))
	second := decodeCreated(t, postPayment(t, body))

	prefix := billing.ReceiptPrefix(time.Now())
	if first.Payment.ReceiptNumber != billing.FormatReceiptNumber(prefix, 1) {
		t.Errorf("first receipt: %q", first.Payment.ReceiptNumber)
	}
	if second.Payment.ReceiptNumber != billing.FormatReceiptNumber(prefix, 2) {
		t.Errorf("second receipt: %q", second.Payment.ReceiptNumber)
	}
}

func TestHandleCreate_PartialCustomPayment(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)

	body := fmt.Sprintf(
		`{"memberId":%d,"amount":1200,"paymentMode":"UPI","planId":"custom","customDuration":45,"customAmount":2000,"customPlanName":"Summer Special"}`,
		member.ID)
	recorder := postPayment(t, body)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}
	result := decodeCreated(t, recorder)

	if !result.Payment.IsPartialPayment {
		t.Error("expected partial payment")
	}
	if !result.Payment.BalanceRemaining.Equal(decimal.NewFromInt(800)) {
		t.Errorf("balance remaining: %s", result.Payment.BalanceRemaining)
	}
	if !result.Member.OutstandingBalance.Equal(decimal.NewFromInt(800)) {
		t.Errorf("outstanding balance: %s", result.Member.OutstandingBalance)
	}
	if result.Member.MembershipPlan != "Summer Special" {
		t.Errorf("membership plan: %q", result.Member.MembershipPlan)
	}
}

func TestHandleCreate_BalanceClearance(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)
	ctx := context.Background()

	if err := d.Queries.SetMemberOutstandingBalance(ctx, member.ID, decimal.NewFromInt(500)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	body := fmt.Sprintf(`{"memberId":%d,"amount":500,"paymentMode":"Cash","planId":"balance_clearance"}`, member.ID)
	recorder := postPayment(t, body)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}
	result := decodeCreated(t, recorder)

	if !result.Member.OutstandingBalance.IsZero() {
		t.Errorf("balance not cleared: %s", result.Member.OutstandingBalance)
	}
	if result.Member.MembershipExpiryDate != nil {
		t.Errorf("clearance must not touch the membership window, got expiry %v",
			result.Member.MembershipExpiryDate)
	}
	if result.Payment.PlanName != "Balance Clearance" {
		t.Errorf("plan name: %q", result.Payment.PlanName)
	}
}

func TestHandleCreate_BalanceClearanceNothingOwed(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)

	body := fmt.Sprintf(`{"memberId":%d,"amount":500,"paymentMode":"Cash","planId":"balance_clearance"}`, member.ID)
	recorder := postPayment(t, body)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Error != "No outstanding balance to clear" {
		t.Errorf("error: %q", env.Error)
	}
}

func TestHandleCreate_InvalidPaymentMode(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)

	body := fmt.Sprintf(`{"memberId":%d,"amount":1000,"paymentMode":"Cheque","planId":"monthly"}`, member.ID)
	recorder := postPayment(t, body)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", recorder.Code)
	}
}

func TestHandleCreate_MemberNotFound(t *testing.T) {
	setupPaymentsTest(t)

	recorder := postPayment(t, `{"memberId":999,"amount":1000,"paymentMode":"Cash","planId":"monthly"}`)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status: %d", recorder.Code)
	}
}

func TestHandleBalance(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)
	ctx := context.Background()

	if err := d.Queries.SetMemberOutstandingBalance(ctx, member.ID, decimal.NewFromInt(500)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	body := fmt.Sprintf(`{"memberId":%d,"amount":200}`, member.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/balance", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	HandleBalance(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var result balanceResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if !result.PreviousBalance.Equal(decimal.NewFromInt(500)) ||
		!result.NewBalance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance result: %+v", result)
	}

	updated, err := d.Queries.GetMemberByID(ctx, member.ID)
	if err != nil {
		t.Fatalf("reload member: %v", err)
	}
	if !updated.OutstandingBalance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("stored balance: %s", updated.OutstandingBalance)
	}
}

func TestHandleBalance_OverpaymentFloorsAtZero(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)
	ctx := context.Background()

	if err := d.Queries.SetMemberOutstandingBalance(ctx, member.ID, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	body := fmt.Sprintf(`{"memberId":%d,"amount":400}`, member.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/balance", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	HandleBalance(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d", recorder.Code)
	}
	updated, err := d.Queries.GetMemberByID(ctx, member.ID)
	if err != nil {
		t.Fatalf("reload member: %v", err)
	}
	if !updated.OutstandingBalance.IsZero() {
		t.Errorf("stored balance: %s", updated.OutstandingBalance)
	}
}

func TestHandleDelete_SoftDeleteHidesFromList(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)

	body := fmt.Sprintf(`{"memberId":%d,"amount":1000,"paymentMode":"Cash","planId":"monthly"}`, member.ID)
	created := decodeCreated(t, postPayment(t, body))

	idStr := strconv.FormatInt(created.Payment.ID, 10)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/payments/"+idStr, nil)
	req.SetPathValue("id", idStr)
	recorder := httptest.NewRecorder()

	HandleDelete(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}

	records, err := d.Queries.ListPayments(context.Background(), store.ListPaymentsParams{Limit: 10})
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("soft-deleted payment still listed: %d records", len(records))
	}

	// Deleting again reports not found.
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/payments/"+idStr, nil)
	req.SetPathValue("id", idStr)
	HandleDelete(recorder, req)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("second delete status: %d", recorder.Code)
	}
}

func TestHandleList_FilterByMember(t *testing.T) {
	d := setupPaymentsTest(t)
	member := seedMember(t, d)

	body := fmt.Sprintf(`{"memberId":%d,"amount":1000,"paymentMode":"Cash","planId":"monthly"}`, member.ID)
	postPayment(t, body)

	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/payments?memberId=%d", member.ID), nil)
	recorder := httptest.NewRecorder()

	HandleList(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d", recorder.Code)
	}
	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var records []store.PaymentWithMember
	if err := json.Unmarshal(env.Data, &records); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records: %d", len(records))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/payments?memberId=999", nil)
	recorder = httptest.NewRecorder()
	HandleList(recorder, req)
	env = envelope{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	records = nil
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &records); err != nil {
			t.Fatalf("decode payments: %v", err)
		}
	}
	if len(records) != 0 {
		t.Fatalf("expected no records for unknown member, got %d", len(records))
	}
}

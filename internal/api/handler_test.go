package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicerp/m/internal/database"
	"clinicerp/m/internal/migrations"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db := database.Connect(":memory:")
	migrations.Run(db)
	t.Cleanup(func() { db.Close() })
	return New(db, "test_secret").Router()
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func registerUser(t *testing.T, router http.Handler, username, role string) string {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@clinic.test",
		"password": "s3cret-pass",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["token"].(string)
}

func registerUserID(t *testing.T, router http.Handler, username, role string) (string, int64) {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@clinic.test",
		"password": "s3cret-pass",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	user := body["user"].(map[string]any)
	return body["token"].(string), int64(user["id"].(float64))
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/medicines/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/medicines/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "eve",
		"email":    "eve@clinic.test",
		"password": "s3cret-pass",
		"role":     "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginFlow(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "dr.house", "doctor")

	rec := doRequest(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "dr.house@clinic.test",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["token"])

	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "dr.house@clinic.test",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleEnforcement(t *testing.T) {
	router := newTestRouter(t)
	receptionist := registerUser(t, router, "front.desk", "receptionist")

	rec := doRequest(t, router, http.MethodPost, "/medicines/", receptionist, map[string]any{
		"name": "Paracetamol",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPrescriptionLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	admin := registerUser(t, router, "admin", "admin")
	doctor := registerUser(t, router, "dr.gomez", "doctor")
	pharmacist := registerUser(t, router, "ph.lin", "pharmacist")
	receptionist := registerUser(t, router, "front.desk", "receptionist")

	rec := doRequest(t, router, http.MethodPost, "/medicines/", admin, map[string]any{
		"name":         "Amoxicillin (Penicillin-class)",
		"generic_name": "Amoxicillin",
		"unit_price":   2.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	medicineID := int64(decodeBody(t, rec)["id"].(float64))

	expiry := time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	rec = doRequest(t, router, http.MethodPost, "/inventory/batches", pharmacist, map[string]any{
		"medicine_id":  medicineID,
		"batch_number": "AMX-001",
		"quantity":     20,
		"expiry_date":  expiry,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, router, http.MethodPost, "/patients/", receptionist, map[string]any{
		"first_name":    "Maya",
		"last_name":     "Iyer",
		"date_of_birth": "1990-04-12",
		"postal_code":   "560001",
		"allergies":     "penicillin",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	patientID := int64(decodeBody(t, rec)["id"].(float64))

	rec = doRequest(t, router, http.MethodPost, "/prescriptions/", doctor, map[string]any{
		"patient_id": patientID,
		"items": []map[string]any{
			{"medicine_id": medicineID, "dosage": "500mg", "frequency": "3x daily", "duration_days": 7, "quantity": 15},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	prescription := created["prescription"].(map[string]any)
	prescriptionID := int64(prescription["id"].(float64))
	// Allergy finding is advisory: creation succeeded and carried it.
	assert.NotEmpty(t, created["allergy_warnings"])

	// Only pharmacists dispense.
	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/prescriptions/%d/dispense", prescriptionID), doctor, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/prescriptions/%d/dispense", prescriptionID), pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Terminal state: a second dispense is a conflict.
	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/prescriptions/%d/dispense", prescriptionID), pharmacist, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Remaining stock is 5; asking for more fails with the shortfall.
	rec = doRequest(t, router, http.MethodPost, "/prescriptions/", doctor, map[string]any{
		"patient_id": patientID,
		"items": []map[string]any{
			{"medicine_id": medicineID, "quantity": 10},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	secondID := int64(decodeBody(t, rec)["prescription"].(map[string]any)["id"].(float64))

	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/prescriptions/%d/dispense", secondID), pharmacist, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	shortfall := decodeBody(t, rec)
	assert.Equal(t, float64(10), shortfall["requested"])
	assert.Equal(t, float64(5), shortfall["available"])

	// The failed dispense left the prescription pending; cancel it.
	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/prescriptions/%d/cancel", secondID), doctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/prescriptions/%d/cancel", secondID), doctor, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPatientSearchAndClusters(t *testing.T) {
	router := newTestRouter(t)
	admin := registerUser(t, router, "admin", "admin")
	receptionist := registerUser(t, router, "front.desk", "receptionist")

	for i, name := range []string{"Asha", "Binod"} {
		rec := doRequest(t, router, http.MethodPost, "/patients/", receptionist, map[string]any{
			"first_name":    name,
			"last_name":     "Rao",
			"date_of_birth": fmt.Sprintf("198%d-01-15", i),
			"postal_code":   "560001",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := doRequest(t, router, http.MethodGet, "/patients/search?query=rao&postal_code=560001", receptionist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var patients []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patients))
	assert.Len(t, patients, 2)

	rec = doRequest(t, router, http.MethodGet, "/analytics/postal-clusters", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var clusters []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clusters))
	require.Len(t, clusters, 1)
	assert.Equal(t, "560001", clusters[0]["postal_code"])
	assert.Equal(t, float64(2), clusters[0]["patient_count"])

	rec = doRequest(t, router, http.MethodGet, "/analytics/demand/560001", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["patient_count"])
}

func TestAppointmentStatusTransitions(t *testing.T) {
	router := newTestRouter(t)
	receptionist := registerUser(t, router, "front.desk", "receptionist")
	doctorToken, doctorID := registerUserID(t, router, "dr.gomez", "doctor")

	rec := doRequest(t, router, http.MethodPost, "/patients/", receptionist, map[string]any{
		"first_name":    "Maya",
		"last_name":     "Iyer",
		"date_of_birth": "1990-04-12",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	patientID := int64(decodeBody(t, rec)["id"].(float64))

	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	rec = doRequest(t, router, http.MethodPost, "/appointments/", receptionist, map[string]any{
		"patient_id":       patientID,
		"doctor_id":        doctorID,
		"appointment_date": date,
		"appointment_time": "09:30",
		"reason":           "follow-up on cough",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "scheduled", created["status"])
	apptID := int64(created["id"].(float64))

	setStatus := func(status string) *httptest.ResponseRecorder {
		return doRequest(t, router, http.MethodPut, fmt.Sprintf("/appointments/%d/status", apptID), receptionist,
			map[string]any{"status": status})
	}

	// scheduled cannot jump straight to completed.
	assert.Equal(t, http.StatusConflict, setStatus("completed").Code)

	for _, status := range []string{"confirmed", "in_progress", "completed"} {
		rec := setStatus(status)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// completed is terminal.
	assert.Equal(t, http.StatusConflict, setStatus("cancelled").Code)

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/appointments/doctor/%d?date=%s", doctorID, date), doctorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var appts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appts))
	require.Len(t, appts, 1)
	assert.Equal(t, "completed", appts[0]["status"])
}

func TestInventoryReports(t *testing.T) {
	router := newTestRouter(t)
	admin := registerUser(t, router, "admin", "admin")
	pharmacist := registerUser(t, router, "ph.lin", "pharmacist")

	rec := doRequest(t, router, http.MethodPost, "/medicines/", admin, map[string]any{
		"name":          "Insulin",
		"unit_price":    10.0,
		"reorder_level": 40,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	medicineID := int64(decodeBody(t, rec)["id"].(float64))

	soon := time.Now().AddDate(0, 0, 10).Format("2006-01-02")
	rec = doRequest(t, router, http.MethodPost, "/inventory/batches", pharmacist, map[string]any{
		"medicine_id":  medicineID,
		"batch_number": "INS-001",
		"quantity":     8,
		"expiry_date":  soon,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/inventory/medicine/%d", medicineID), pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(8), decodeBody(t, rec)["total_quantity"])

	rec = doRequest(t, router, http.MethodGet, "/inventory/expiring?days=30", pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var expiring []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &expiring))
	require.Len(t, expiring, 1)
	assert.Equal(t, "INS-001", expiring[0]["batch_number"])

	// 8 on hand against a reorder level of 40 suggests ordering 72.
	rec = doRequest(t, router, http.MethodGet, "/inventory/reorder", pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reorder []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reorder))
	require.Len(t, reorder, 1)
	assert.Equal(t, float64(72), reorder[0]["quantity_to_order"])
}

func TestBillingFlow(t *testing.T) {
	router := newTestRouter(t)
	admin := registerUser(t, router, "admin", "admin")
	receptionist := registerUser(t, router, "front.desk", "receptionist")

	rec := doRequest(t, router, http.MethodPost, "/patients/", receptionist, map[string]any{
		"first_name":    "Maya",
		"last_name":     "Iyer",
		"date_of_birth": "1990-04-12",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	patientID := int64(decodeBody(t, rec)["id"].(float64))

	rec = doRequest(t, router, http.MethodPost, "/bills/", receptionist, map[string]any{
		"patient_id": patientID,
		"items": []map[string]any{
			{"item_type": "Consultation", "description": "General consultation", "quantity": 1, "unit_price": 100.0},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bill := decodeBody(t, rec)
	billID := int64(bill["id"].(float64))
	assert.Equal(t, float64(100), bill["total_amount"])
	assert.Equal(t, float64(5), bill["tax"])
	assert.Equal(t, float64(105), bill["net_amount"])

	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/bills/%d/payment", billID), receptionist, map[string]any{
		"amount":         50.0,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partially_paid", decodeBody(t, rec)["status"])

	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/bills/%d/payment", billID), receptionist, map[string]any{
		"amount":         55.0,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", decodeBody(t, rec)["status"])

	today := time.Now().Format("2006-01-02")
	rec = doRequest(t, router, http.MethodGet, "/bills/revenue-report?start_date="+today+"&end_date="+today, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody(t, rec)
	assert.Equal(t, float64(1), report["total_bills"])
	assert.Equal(t, float64(105), report["total_collected"])
}

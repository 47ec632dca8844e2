package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/khanghh/kadmin/internal/alerts"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/authz"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/khanghh/kadmin/internal/sessions"
	"github.com/khanghh/kadmin/internal/store"
	"github.com/khanghh/kadmin/internal/testutil"
	"github.com/khanghh/kadmin/internal/twofactor"
	"github.com/khanghh/kadmin/internal/users"
	"github.com/khanghh/kadmin/internal/workflow"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword       = "correct-horse"
	testInternalSecret = "internal-s3cret"
)

type apiFixture struct {
	app      *fiber.App
	tenant   *model.Tenant
	editor   *model.Identity
	approver *model.Identity
	auditor  *model.Identity
	plain    *model.Identity
	outsider *model.Identity
}

func newAPIFixture(t *testing.T) *apiFixture {
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	globex := testutil.CreateTenant(t, db, "globex")

	resolver := rbac.NewResolver(db)
	auditService := audit.NewAuditService(db, resolver, nil, audit.Config{MasterKey: "k"})
	sessionService := sessions.NewSessionService(db, auditService, resolver, sessions.Config{MasterKey: "k"})
	roleService := rbac.NewRoleService(db, resolver, auditService)
	svc := Services{
		Authorizer: authz.NewAuthorizer(sessionService, resolver),
		Users:      users.NewUserService(db, resolver, roleService, sessionService, auditService, users.Config{PasswordCost: bcrypt.MinCost}),
		Sessions:   sessionService,
		TwoFactor: twofactor.NewTwoFactorService(db, store.NewMemoryStorage(), sessionService, auditService, twofactor.Config{
			MasterKey:      "k",
			BackupCodeCost: bcrypt.MinCost,
		}),
		Workflow: workflow.NewEngine(db, resolver, auditService),
		Audit:    auditService,
		Roles:    roleService,
		Alerts:   alerts.NewService(db, resolver, nil),
	}

	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	SetupRoutes(app, svc, RouteConfig{
		Cookie:         CookieConfig{Name: params.SessionCookieName},
		InternalSecret: testInternalSecret,
		LimiterStorage: memory.New(),
	})

	return &apiFixture{
		app:      app,
		tenant:   tenant,
		editor:   testutil.CreateIdentity(t, db, tenant.ID, "editor@acme.io", testPassword, model.PermDocumentView, model.PermDocumentEdit),
		approver: testutil.CreateIdentity(t, db, tenant.ID, "approver@acme.io", testPassword, model.PermDocumentView, model.PermDocumentApprove),
		auditor:  testutil.CreateIdentity(t, db, tenant.ID, "auditor@acme.io", testPassword, model.PermAuditView),
		plain:    testutil.CreateIdentity(t, db, tenant.ID, "plain@acme.io", testPassword),
		outsider: testutil.CreateIdentity(t, db, globex.ID, "root@globex.io", testPassword, model.PermDocumentView),
	}
}

type apiResult struct {
	status int
	body   struct {
		Data  json.RawMessage      `json:"data"`
		Error *render.APIErrorInfo `json:"error"`
	}
}

func (r *apiResult) decode(t *testing.T, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body.Data, out))
}

func (r *apiResult) reason() string {
	if r.body.Error == nil || len(r.body.Error.Errors) == 0 {
		return ""
	}
	return r.body.Error.Errors[0].Reason
}

func (f *apiFixture) do(t *testing.T, method, path, token string, payload any, headers ...string) *apiResult {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	result := &apiResult{status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &result.body))
	}
	return result
}

func (f *apiFixture) login(t *testing.T, tenant string, identity *model.Identity) loginResponse {
	t.Helper()
	res := f.do(t, fiber.MethodPost, "/api/auth/login", "", loginRequest{
		Tenant:   tenant,
		Email:    identity.Email,
		Password: testPassword,
	})
	require.Equal(t, fiber.StatusOK, res.status)
	var out loginResponse
	res.decode(t, &out)
	require.NotEmpty(t, out.Token)
	return out
}

func TestLoginAndLogout(t *testing.T) {
	f := newAPIFixture(t)
	login := f.login(t, "acme", f.editor)
	assert.False(t, login.MFARequired)
	assert.Equal(t, f.editor.Email, login.Identity.Email)

	res := f.do(t, fiber.MethodGet, "/api/me", login.Token, nil)
	assert.Equal(t, fiber.StatusOK, res.status)

	res = f.do(t, fiber.MethodPost, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, fiber.StatusNoContent, res.status)

	res = f.do(t, fiber.MethodGet, "/api/me", login.Token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, res.status)
	assert.Equal(t, sessions.ReasonSessionRevoked, res.reason())
}

func TestLoginFailureIsGeneric(t *testing.T) {
	f := newAPIFixture(t)
	attempts := []loginRequest{
		{Tenant: "acme", Email: f.editor.Email, Password: "wrong-password"},
		{Tenant: "acme", Email: "ghost@acme.io", Password: testPassword},
		{Tenant: "nowhere", Email: f.editor.Email, Password: testPassword},
	}
	for _, attempt := range attempts {
		res := f.do(t, fiber.MethodPost, "/api/auth/login", "", attempt)
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
		assert.Equal(t, "INVALID_CREDENTIALS", res.reason())
	}
}

func TestSessionRoutes(t *testing.T) {
	f := newAPIFixture(t)
	first := f.login(t, "acme", f.editor)
	second := f.login(t, "acme", f.editor)

	res := f.do(t, fiber.MethodGet, "/api/sessions", first.Token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	var list struct {
		Items []sessionInfo `json:"items"`
	}
	res.decode(t, &list)
	assert.Len(t, list.Items, 2)

	other := f.login(t, "acme", f.plain)
	res = f.do(t, fiber.MethodDelete, "/api/sessions/"+other.SessionID, first.Token, nil)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = f.do(t, fiber.MethodDelete, "/api/sessions/"+second.SessionID, first.Token, nil)
	assert.Equal(t, fiber.StatusNoContent, res.status)
	res = f.do(t, fiber.MethodGet, "/api/me", second.Token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, res.status)

	res = f.do(t, fiber.MethodPost, "/api/sessions/revoke-all", first.Token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	var revoked struct {
		Revoked int64 `json:"revoked"`
	}
	res.decode(t, &revoked)
	assert.EqualValues(t, 1, revoked.Revoked)
}

func TestInternalValidate(t *testing.T) {
	f := newAPIFixture(t)
	login := f.login(t, "acme", f.editor)
	payload := validateSessionRequest{SessionID: login.SessionID}

	res := f.do(t, fiber.MethodPost, "/internal/sessions/validate", "", payload, params.InternalSecretHeader, "wrong")
	assert.Equal(t, fiber.StatusUnauthorized, res.status)

	res = f.do(t, fiber.MethodPost, "/internal/sessions/validate", "", payload)
	assert.Equal(t, fiber.StatusUnauthorized, res.status)

	res = f.do(t, fiber.MethodPost, "/internal/sessions/validate", "", payload, params.InternalSecretHeader, testInternalSecret)
	require.Equal(t, fiber.StatusOK, res.status)
	var validation sessions.Validation
	res.decode(t, &validation)
	assert.True(t, validation.Valid)

	f.do(t, fiber.MethodPost, "/api/auth/logout", login.Token, nil)
	res = f.do(t, fiber.MethodPost, "/internal/sessions/validate", "", validateSessionRequest{Token: login.Token}, params.InternalSecretHeader, testInternalSecret)
	require.Equal(t, fiber.StatusOK, res.status)
	res.decode(t, &validation)
	assert.False(t, validation.Valid)
	assert.Equal(t, sessions.ReasonSessionRevoked, validation.Reason)
}

func TestDocumentRoutes(t *testing.T) {
	f := newAPIFixture(t)
	editor := f.login(t, "acme", f.editor)
	approver := f.login(t, "acme", f.approver)

	res := f.do(t, fiber.MethodPost, "/api/documents", editor.Token, createDocumentRequest{Title: "Quality manual"})
	require.Equal(t, fiber.StatusCreated, res.status)
	var doc documentInfo
	res.decode(t, &doc)
	assert.Equal(t, "DRAFT", doc.Status)
	assert.Equal(t, []workflow.Action{workflow.ActionSubmit}, doc.AvailableActions)

	res = f.do(t, fiber.MethodPost, "/api/documents/"+doc.ID+"/actions/approve", approver.Token, nil)
	assert.Equal(t, fiber.StatusConflict, res.status)
	assert.Equal(t, "INVALID_TRANSITION", res.reason())

	res = f.do(t, fiber.MethodPost, "/api/documents/"+doc.ID+"/actions/submit", editor.Token, documentActionRequest{Comment: "ready"})
	require.Equal(t, fiber.StatusOK, res.status)
	res.decode(t, &doc)
	assert.Equal(t, "SUBMITTED", doc.Status)

	res = f.do(t, fiber.MethodPost, "/api/documents/"+doc.ID+"/actions/approve", editor.Token, nil)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = f.do(t, fiber.MethodPost, "/api/documents/"+doc.ID+"/actions/publish", approver.Token, nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, res.status)
	assert.Equal(t, "UNKNOWN_ACTION", res.reason())

	res = f.do(t, fiber.MethodPost, "/api/documents/"+doc.ID+"/actions/approve", approver.Token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	res.decode(t, &doc)
	assert.Equal(t, "APPROVED", doc.Status)

	plain := f.login(t, "acme", f.plain)
	res = f.do(t, fiber.MethodGet, "/api/documents/"+doc.ID, plain.Token, nil)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	outsider := f.login(t, "globex", f.outsider)
	res = f.do(t, fiber.MethodGet, "/api/documents/"+doc.ID, outsider.Token, nil)
	assert.Equal(t, fiber.StatusNotFound, res.status)

	res = f.do(t, fiber.MethodGet, "/api/documents/"+doc.ID, "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, res.status)
}

func TestAuditRoutes(t *testing.T) {
	f := newAPIFixture(t)
	f.login(t, "acme", f.editor)
	auditor := f.login(t, "acme", f.auditor)
	plain := f.login(t, "acme", f.plain)

	res := f.do(t, fiber.MethodGet, "/api/audit/verify", auditor.Token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	var report audit.ChainReport
	res.decode(t, &report)
	assert.True(t, report.Valid)
	assert.GreaterOrEqual(t, report.Checked, 3)

	res = f.do(t, fiber.MethodGet, "/api/audit?action="+audit.ActionLoginSuccess, auditor.Token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	var list struct {
		Items []auditRecord `json:"items"`
	}
	res.decode(t, &list)
	assert.Len(t, list.Items, 3)

	res = f.do(t, fiber.MethodGet, "/api/audit/verify", plain.Token, nil)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = f.do(t, fiber.MethodPost, "/api/audit/cleanup", auditor.Token, cleanupRequest{OlderThanDays: 365})
	assert.Equal(t, fiber.StatusForbidden, res.status)
}

func TestMFAStatusRoute(t *testing.T) {
	f := newAPIFixture(t)
	login := f.login(t, "acme", f.plain)

	res := f.do(t, fiber.MethodGet, "/api/mfa", login.Token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	var status struct {
		Enabled bool `json:"enabled"`
	}
	res.decode(t, &status)
	assert.False(t, status.Enabled)

	res = f.do(t, fiber.MethodPost, "/api/mfa/enroll", login.Token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	var key twofactor.TOTPKey
	res.decode(t, &key)
	assert.NotEmpty(t, key.Secret)

	res = f.do(t, fiber.MethodPost, "/api/mfa/verify", login.Token, mfaCodeRequest{Code: "123456"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, res.status)
	assert.Equal(t, "MFA_NOT_ENABLED", res.reason())
}

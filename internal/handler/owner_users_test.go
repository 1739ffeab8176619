package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavehrad/traffic-dashboard/internal/model"
)

type userPayload struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

func decodeUser(t *testing.T, rec *httptest.ResponseRecorder) userPayload {
	t.Helper()
	var u userPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	return u
}

func TestOwnerCreatesAdminOthersDenied(t *testing.T) {
	app := newTestApp(t)
	owner := app.seedOwner(t)
	viewer := app.register(t, "Viewer", "v@x.com", "viewer-pw")

	rec := app.do("POST", "/v1/owner/users",
		`{"name":"Carol","email":"c@x.com","password":"carol-pw","role":"ADMIN"}`,
		owner.Access.Token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeUser(t, rec)
	assert.Equal(t, model.RoleAdmin, created.Role)

	// The new admin can sign in but cannot reach owner endpoints.
	admin := decodeAuth(t, app.do("POST", "/v1/auth/login",
		`{"email":"c@x.com","password":"carol-pw"}`, ""))
	rec = app.do("POST", "/v1/owner/users",
		`{"name":"Dave","email":"d@x.com","password":"dave-pw","role":"VIEWER"}`,
		admin.Access.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do("GET", "/v1/owner/users", "", viewer.Access.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do("GET", "/v1/owner/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOwnerCreateRejectsOwnerRole(t *testing.T) {
	app := newTestApp(t)
	owner := app.seedOwner(t)

	rec := app.do("POST", "/v1/owner/users",
		`{"name":"Eve","email":"e@x.com","password":"eve-pw","role":"OWNER"}`,
		owner.Access.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do("POST", "/v1/owner/users",
		`{"name":"Eve","email":"e@x.com","password":"eve-pw","role":"WIZARD"}`,
		owner.Access.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnerListAndGet(t *testing.T) {
	app := newTestApp(t)
	owner := app.seedOwner(t)
	v := app.register(t, "Viewer", "v@x.com", "viewer-pw")

	rec := app.do("GET", "/v1/owner/users", "", owner.Access.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Users []userPayload `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Users, 2)

	rec = app.do("GET", "/v1/owner/users/"+strconv.FormatUint(v.User.ID, 10), "",
		owner.Access.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v@x.com", decodeUser(t, rec).Email)

	rec = app.do("GET", "/v1/owner/users/9999", "", owner.Access.Token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOwnerChangeRole(t *testing.T) {
	app := newTestApp(t)
	owner := app.seedOwner(t)
	v := app.register(t, "Viewer", "v@x.com", "viewer-pw")
	id := strconv.FormatUint(v.User.ID, 10)

	rec := app.do("PUT", "/v1/owner/users/"+id+"/role", `{"role":"OPERATOR"}`,
		owner.Access.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RoleOperator, decodeUser(t, rec).Role)

	// Nobody gets promoted to the privileged role through this endpoint.
	rec = app.do("PUT", "/v1/owner/users/"+id+"/role", `{"role":"OWNER"}`,
		owner.Access.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The privileged account itself cannot be demoted here.
	ownerID := strconv.FormatUint(owner.User.ID, 10)
	rec = app.do("PUT", "/v1/owner/users/"+ownerID+"/role", `{"role":"VIEWER"}`,
		owner.Access.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do("PUT", "/v1/owner/users/9999/role", `{"role":"VIEWER"}`,
		owner.Access.Token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOwnerSetActive(t *testing.T) {
	app := newTestApp(t)
	owner := app.seedOwner(t)
	v := app.register(t, "Viewer", "v@x.com", "viewer-pw")
	id := strconv.FormatUint(v.User.ID, 10)

	rec := app.do("PUT", "/v1/owner/users/"+id+"/active", `{"active":false}`,
		owner.Access.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeUser(t, rec).IsActive)

	// Deactivated accounts cannot log in until re-enabled.
	rec = app.do("POST", "/v1/auth/login", `{"email":"v@x.com","password":"viewer-pw"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do("PUT", "/v1/owner/users/"+id+"/active", `{"active":true}`,
		owner.Access.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do("POST", "/v1/auth/login", `{"email":"v@x.com","password":"viewer-pw"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// The last active privileged account cannot deactivate itself.
	ownerID := strconv.FormatUint(owner.User.ID, 10)
	rec = app.do("PUT", "/v1/owner/users/"+ownerID+"/active", `{"active":false}`,
		owner.Access.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOwnerDeleteGuards(t *testing.T) {
	app := newTestApp(t)
	owner := app.seedOwner(t)
	v := app.register(t, "Viewer", "v@x.com", "viewer-pw")
	id := strconv.FormatUint(v.User.ID, 10)
	ownerID := strconv.FormatUint(owner.User.ID, 10)

	// Owners are never deletable, including by themselves.
	rec := app.do("DELETE", "/v1/owner/users/"+ownerID, "", owner.Access.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do("DELETE", "/v1/owner/users/"+id, "", owner.Access.Token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Removal is a soft deactivate: the row survives, sign-in does not.
	u, err := app.users.GetByID(t.Context(), v.User.ID)
	require.NoError(t, err)
	assert.False(t, u.IsActive)
	rec = app.do("POST", "/v1/auth/login", `{"email":"v@x.com","password":"viewer-pw"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do("DELETE", "/v1/owner/users/9999", "", owner.Access.Token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

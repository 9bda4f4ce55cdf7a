package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/handlers"
	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/router"
	"zhulink-cascade/internal/services"
	"zhulink-cascade/internal/testutils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	engine *gin.Engine
	store  *testutils.MemoryStore
	pool   *services.WorkerPool
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := testutils.NewMemoryStore()
	conf := config.Default()
	pool := services.NewWorkerPool(2, 100, nil)
	t.Cleanup(pool.Close)
	resolver, err := services.NewOwnershipResolver(s, 100, conf.Cache.TTL)
	require.NoError(t, err)
	h := handlers.NewContentHandler(
		services.NewAuthorizer(resolver),
		services.NewCascadeEngine(s, pool, conf.Cascade, nil),
		resolver,
	)

	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	router.RegisterRoutes(r, h)
	// 模拟登录服务写入 session
	r.GET("/test/login/:uid", func(c *gin.Context) {
		uid, _ := strconv.Atoi(c.Param("uid"))
		session := sessions.Default(c)
		session.Set("user_id", uint(uid))
		require.NoError(t, session.Save())
		c.Status(http.StatusOK)
	})
	return &server{engine: r, store: s, pool: pool}
}

func (s *server) login(t *testing.T, uid uint) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test/login/"+strconv.Itoa(int(uid)), nil)
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Result().Cookies()
}

func (s *server) do(t *testing.T, method, path string, cookies []*http.Cookie) (*httptest.ResponseRecorder, handlers.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	s.engine.ServeHTTP(w, req)

	var resp handlers.Response
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "text/plain; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestDeleteRoutes(t *testing.T) {
	srv := newServer(t)
	st := srv.store
	f := st.AddForum(1)
	p := st.AddPost(f.ID, 2)
	c := st.AddComment(p.ID, 0, 3)
	v := st.AddVote(4, c.ID, false, 1)

	tests := []struct {
		name   string
		user   uint
		path   string
		status int
	}{
		{"anonymous", 0, "/posts/" + strconv.Itoa(int(p.ID)), http.StatusUnauthorized},
		{"bad id", 2, "/posts/abc", http.StatusBadRequest},
		{"missing", 2, "/posts/9999", http.StatusNotFound},
		{"stranger on forum", 9, "/forums/" + strconv.Itoa(int(f.ID)), http.StatusForbidden},
		{"forum owner on vote", 1, "/votes/" + strconv.Itoa(int(v.ID)), http.StatusForbidden},
		{"post owner on comment", 2, "/comments/" + strconv.Itoa(int(c.ID)), http.StatusAccepted},
		{"comment already deleted", 3, "/comments/" + strconv.Itoa(int(c.ID)), http.StatusNotFound},
		{"forum owner on post", 1, "/posts/" + strconv.Itoa(int(p.ID)), http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.user != 0 {
				cookies = srv.login(t, tt.user)
			}
			w, resp := srv.do(t, http.MethodDelete, tt.path, cookies)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusAccepted {
				assert.Equal(t, handlers.CodeSuccess, resp.Code)
			} else {
				assert.Equal(t, tt.status, resp.Code)
			}
			srv.pool.Wait()
		})
	}

	assert.True(t, st.IsDeleted(models.KindComment, c.ID))
	assert.True(t, st.IsDeleted(models.KindVote, v.ID))
	assert.True(t, st.IsDeleted(models.KindPost, p.ID))
	assert.False(t, st.IsDeleted(models.KindForum, f.ID))
}

func TestOwnerRoute(t *testing.T) {
	srv := newServer(t)
	f := srv.store.AddForum(42)

	w, resp := srv.do(t, http.MethodGet, "/owners/forums/"+strconv.Itoa(int(f.ID)), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, 42.0, data["owner_id"])

	w, _ = srv.do(t, http.MethodGet, "/owners/threads/1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = srv.do(t, http.MethodGet, "/owners/post/777", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	srv := newServer(t)
	w, _ := srv.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

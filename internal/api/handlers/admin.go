// admin.go — административные endpoints: пользователи, файлы, удаление, сверка.
// Авторизация: RequireRole(admin) — на уровне middleware.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/studyshare/internal/api/middleware"
)

// AdminListUsers обрабатывает GET /api/admin/users.
func (h *APIHandler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Admin.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "admin_list_users")
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

// AdminListFiles обрабатывает GET /api/admin/files.
func (h *APIHandler) AdminListFiles(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Admin.ListFiles(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "admin_list_files")
		return
	}
	writeJSON(w, http.StatusOK, toFileResponses(records))
}

// AdminDeleteFile обрабатывает DELETE /api/admin/files/{id}.
// Карточка удаляется всегда; ошибка удаления blob'а только логируется.
func (h *APIHandler) AdminDeleteFile(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Admin.DeleteFile(r.Context(), chi.URLParam(r, "id"), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "admin_delete_file")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Файл удалён"})
}

// AdminReconcile обрабатывает POST /api/admin/reconcile.
// Запускает сверку синхронно и возвращает отчёт.
func (h *APIHandler) AdminReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reconcile.RunOnce(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "admin_reconcile")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

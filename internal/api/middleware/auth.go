// auth.go — JWT middleware для аутентификации и авторизации StudyShare.
// Собственные токены подписаны HS256 (SS_JWT_SECRET).
// Если задан SS_JWKS_URL, дополнительно принимаются RS256 токены внешнего IdP,
// ключи которого загружаются через JWKS с фоновым обновлением.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/studyshare/internal/api/errors"
	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/service"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// AuthClaims — claims аутентифицированного пользователя.
// Помещаются в контекст запроса для downstream handlers.
type AuthClaims struct {
	// Subject — sub из JWT (ID пользователя).
	Subject string
	// Email — email из JWT.
	Email string
	// Role — user или admin.
	Role string
	// External — токен выпущен внешним IdP (RS256).
	External bool
}

// HasAnyRole проверяет, совпадает ли роль с одной из указанных.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	return slices.Contains(roles, c.Role)
}

// UserResolver сопоставляет пользователя внешнего IdP с локальной учётной записью.
// Реализуется service.AuthService.
type UserResolver interface {
	ResolveExternalUser(ctx context.Context, subject, email, role string) (string, error)
}

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	secret    []byte
	jwks      keyfunc.Keyfunc
	issuer    string
	jwtLeeway time.Duration
	users     UserResolver
	logger    *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
// secret — ключ HS256 собственных токенов.
// issuer — ожидаемый issuer собственных токенов.
// jwksURL — JWKS внешнего IdP; пустая строка отключает приём RS256 токенов.
// jwksRefreshInterval — интервал обновления JWKS-ключей (SS_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени при проверке JWT (SS_JWT_LEEWAY).
func NewJWTAuth(
	secret []byte,
	issuer string,
	jwksURL string,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	j := &JWTAuth{
		secret:    secret,
		issuer:    issuer,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
	if jwksURL == "" {
		return j, nil
	}

	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	j.jwks = k

	logger.Info("Включён приём токенов внешнего IdP", slog.String("jwks_url", jwksURL))
	return j, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS. kf может быть nil.
func NewJWTAuthWithKeyfunc(secret []byte, kf keyfunc.Keyfunc, issuer string, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		secret: secret,
		jwks:   kf,
		issuer: issuer,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// WithUserResolver включает подстановку локального ID для токенов внешнего IdP.
// Без resolver'а Subject таких токенов остаётся sub внешнего IdP.
func (j *JWTAuth) WithUserResolver(users UserResolver) *JWTAuth {
	j.users = users
	return j
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись, определяет роль
// и помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := bearerToken(r)
			if msg != "" {
				apierrors.Unauthorized(w, msg)
				return
			}

			claims, err := j.parse(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if claims.External && j.users != nil {
				localID, err := j.users.ResolveExternalUser(r.Context(), claims.Subject, claims.Email, claims.Role)
				if err != nil {
					if errors.Is(err, service.ErrValidation) {
						j.logger.Debug("Токен внешнего IdP без пригодного email",
							slog.String("sub", claims.Subject),
							slog.String("error", err.Error()),
						)
						apierrors.Unauthorized(w, "Токен внешнего IdP должен содержать email")
						return
					}
					j.logger.Error("Ошибка сопоставления пользователя внешнего IdP",
						slog.String("sub", claims.Subject),
						slog.String("error", err.Error()),
					)
					apierrors.InternalError(w, "Внутренняя ошибка сервера")
					return
				}
				claims.Subject = localID
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization.
// При ошибке возвращает сообщение для клиента.
func bearerToken(r *http.Request) (token, message string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Отсутствует заголовок Authorization"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}

	token = strings.TrimSpace(parts[1])
	if token == "" {
		return "", "Пустой Bearer token"
	}
	return token, ""
}

// parse валидирует токен и формирует AuthClaims.
func (j *JWTAuth) parse(ctx context.Context, tokenString string) (*AuthClaims, error) {
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if j.jwks != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}

	raw := &service.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, raw, j.keyFunc(ctx),
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("невалидный токен")
	}

	// Issuer проверяется только у собственных токенов
	if token.Method.Alg() == jwt.SigningMethodHS256.Alg() && j.issuer != "" && raw.Issuer != j.issuer {
		return nil, fmt.Errorf("неожиданный issuer %q", raw.Issuer)
	}

	if raw.Subject == "" {
		return nil, errors.New("отсутствует sub в токене")
	}

	return &AuthClaims{
		Subject:  raw.Subject,
		Email:    raw.Email,
		Role:     resolveRole(raw),
		External: token.Method.Alg() == jwt.SigningMethodRS256.Alg(),
	}, nil
}

// keyFunc выбирает ключ проверки подписи по алгоритму токена.
func (j *JWTAuth) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		switch token.Method.Alg() {
		case jwt.SigningMethodHS256.Alg():
			return j.secret, nil
		case jwt.SigningMethodRS256.Alg():
			if j.jwks == nil {
				return nil, errors.New("JWKS не настроен")
			}
			return j.jwks.KeyfuncCtx(ctx)(token)
		default:
			return nil, fmt.Errorf("неподдерживаемый алгоритм %s", token.Method.Alg())
		}
	}
}

// resolveRole определяет роль: claim role, иначе realm_access.roles.
// Токен без известной роли получает роль user.
func resolveRole(raw *service.TokenClaims) string {
	if model.ValidRole(raw.Role) {
		return raw.Role
	}
	if raw.RealmAccess != nil && slices.Contains(raw.RealmAccess.Roles, model.RoleAdmin) {
		return model.RoleAdmin
	}
	return model.RoleUser
}

// --- RBAC middleware helpers ---

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			if !claims.HasAnyRole(roles...) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если claims не найдены.
func SubjectFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// WithClaims помещает claims в контекст (для тестов обработчиков).
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}

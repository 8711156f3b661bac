package access

import (
	"fmt"
	"strings"
)

type messageKey string

const (
	msgUnauthenticated    messageKey = "unauthenticated"
	msgTenantMismatch     messageKey = "tenant_mismatch"
	msgTenantNotFound     messageKey = "tenant_not_found"
	msgNotMember          messageKey = "not_member"
	msgInsufficientRole   messageKey = "insufficient_role"
	msgInsufficientScope  messageKey = "insufficient_scope"
	msgSuperadminRequired messageKey = "superadmin_required"
	msgSessionRequired    messageKey = "session_required"
	msgFeatureUnavailable messageKey = "feature_unavailable"
	msgQuotaExceeded      messageKey = "quota_exceeded"
	msgRateLimited        messageKey = "rate_limited"
	msgUnavailable        messageKey = "unavailable"
)

var catalogs = map[string]map[messageKey]string{
	"es": {
		msgUnauthenticated:    "Autenticación requerida",
		msgTenantMismatch:     "La API key no pertenece a este tenant",
		msgTenantNotFound:     "Tenant no encontrado",
		msgNotMember:          "No eres miembro de este tenant",
		msgInsufficientRole:   "No tienes permisos suficientes",
		msgInsufficientScope:  "La API key no tiene el scope requerido",
		msgSuperadminRequired: "Se requiere rol de superadmin",
		msgSessionRequired:    "Esta operación requiere una sesión de usuario",
		msgFeatureUnavailable: "La función %s no está disponible en el plan %s",
		msgQuotaExceeded:      "Se alcanzó el límite de %s del plan %s",
		msgRateLimited:        "Demasiadas solicitudes, intenta de nuevo más tarde",
		msgUnavailable:        "Servicio no disponible temporalmente",
	},
	"en": {
		msgUnauthenticated:    "Authentication required",
		msgTenantMismatch:     "API key does not belong to this tenant",
		msgTenantNotFound:     "Tenant not found",
		msgNotMember:          "You are not a member of this tenant",
		msgInsufficientRole:   "Insufficient permissions",
		msgInsufficientScope:  "API key lacks the required scope",
		msgSuperadminRequired: "Superadmin role required",
		msgSessionRequired:    "This operation requires a user session",
		msgFeatureUnavailable: "Feature %s is not available on the %s plan",
		msgQuotaExceeded:      "The %s limit of the %s plan has been reached",
		msgRateLimited:        "Too many requests, please try again later",
		msgUnavailable:        "Service temporarily unavailable",
	},
}

// message renders key in locale, falling back to Spanish and then English.
func message(locale string, key messageKey, args ...any) string {
	lang := strings.ToLower(locale)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	for _, l := range []string{lang, "es", "en"} {
		if c, ok := catalogs[l]; ok {
			if tmpl, ok := c[key]; ok {
				if len(args) > 0 {
					return fmt.Sprintf(tmpl, args...)
				}
				return tmpl
			}
		}
	}
	return string(key)
}

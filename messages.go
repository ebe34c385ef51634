package resilience

// Language selects the user-facing message catalog. The platform serves
// French and Malagasy; French is the default.
type Language string

const (
	LanguageFrench   Language = "fr"
	LanguageMalagasy Language = "mg"
)

type userMessage struct {
	Title   string
	Message string
	Action  string
}

// messageCatalog holds the per-category title/message/action texts shown to
// end users. Read-only after initialization.
var messageCatalog = map[Language]map[ErrorCategory]userMessage{
	LanguageFrench: {
		CategoryNetwork: {
			Title:   "Problème de connexion",
			Message: "Impossible de joindre le service.",
			Action:  "Vérifiez votre connexion Internet et réessayez.",
		},
		CategoryTimeout: {
			Title:   "Délai dépassé",
			Message: "Le service a mis trop de temps à répondre.",
			Action:  "Réessayez dans quelques instants.",
		},
		CategoryServiceUnavailable: {
			Title:   "Service indisponible",
			Message: "Le service est temporairement indisponible.",
			Action:  "Réessayez plus tard.",
		},
		CategoryValidation: {
			Title:   "Données invalides",
			Message: "Les informations fournies sont invalides.",
			Action:  "Corrigez les champs indiqués puis soumettez à nouveau.",
		},
		CategoryAuthFailed: {
			Title:   "Échec d'authentification",
			Message: "Vos identifiants n'ont pas pu être vérifiés.",
			Action:  "Reconnectez-vous à votre compte.",
		},
		CategoryTokenExpired: {
			Title:   "Session expirée",
			Message: "Votre session a expiré.",
			Action:  "Reconnectez-vous pour continuer.",
		},
		CategoryPermissionDenied: {
			Title:   "Accès refusé",
			Message: "Vous n'avez pas les droits nécessaires pour cette action.",
			Action:  "Contactez l'administrateur de votre organisation.",
		},
		CategoryNotFound: {
			Title:   "Introuvable",
			Message: "La ressource demandée est introuvable.",
			Action:  "Vérifiez la référence du document.",
		},
		CategoryDatabase: {
			Title:   "Erreur de base de données",
			Message: "Une erreur est survenue lors de l'accès aux données.",
			Action:  "Réessayez ; vos données n'ont pas été perdues.",
		},
		CategoryRateLimited: {
			Title:   "Trop de requêtes",
			Message: "Vous avez effectué trop de requêtes en peu de temps.",
			Action:  "Patientez un moment avant de réessayer.",
		},
		CategoryInternal: {
			Title:   "Erreur interne",
			Message: "Une erreur inattendue est survenue.",
			Action:  "Réessayez ; si le problème persiste, contactez le support.",
		},
	},
	LanguageMalagasy: {
		CategoryNetwork: {
			Title:   "Olana amin'ny fifandraisana",
			Message: "Tsy tafiditra amin'ny serivisy.",
			Action:  "Hamarino ny fifandraisanao amin'ny Internet dia andramo indray.",
		},
		CategoryTimeout: {
			Title:   "Tara loatra ny valiny",
			Message: "Naharitra loatra ny famalian'ny serivisy.",
			Action:  "Andramo indray afaka fotoana fohy.",
		},
		CategoryServiceUnavailable: {
			Title:   "Tsy misy ny serivisy",
			Message: "Tsy azo ampiasaina vetivety ny serivisy.",
			Action:  "Andramo indray any aoriana.",
		},
		CategoryValidation: {
			Title:   "Tsy mety ny angona",
			Message: "Misy tsy mety ny angona nampidirina.",
			Action:  "Ahitsio ireo saha voalaza dia alefaso indray.",
		},
		CategoryAuthFailed: {
			Title:   "Tsy nahomby ny fidirana",
			Message: "Tsy voamarina ny mombamomba anao.",
			Action:  "Midira indray amin'ny kaontinao.",
		},
		CategoryTokenExpired: {
			Title:   "Lany daty ny fidirana",
			Message: "Tapitra ny fotoam-pidiranao.",
			Action:  "Midira indray raha te hanohy.",
		},
		CategoryPermissionDenied: {
			Title:   "Tsy mahazo alalana",
			Message: "Tsy manana alalana hanao izany ianao.",
			Action:  "Antsoy ny mpandrindra ny fikambananao.",
		},
		CategoryNotFound: {
			Title:   "Tsy hita",
			Message: "Tsy hita ilay zavatra notadiavina.",
			Action:  "Hamarino ny laharan'ny antontan-taratasy.",
		},
		CategoryDatabase: {
			Title:   "Olana amin'ny angona",
			Message: "Nisy olana tamin'ny fidirana amin'ny angona.",
			Action:  "Andramo indray ; tsy very ny angonao.",
		},
		CategoryRateLimited: {
			Title:   "Fangatahana be loatra",
			Message: "Fangatahana maro loatra tao anatin'ny fotoana fohy.",
			Action:  "Miandrasa kely alohan'ny hanandramana indray.",
		},
		CategoryInternal: {
			Title:   "Olana anatiny",
			Message: "Nisy olana tsy nampoizina.",
			Action:  "Andramo indray ; raha mitohy dia antsoy ny mpanohana.",
		},
	},
}

// supportHints are appended for high and critical severities so the user can
// escalate with the correlation ID.
var supportHints = map[Language]string{
	LanguageFrench:   "Contactez le support JuraChain en indiquant l'identifiant de corrélation.",
	LanguageMalagasy: "Antsoy ny mpanohana JuraChain ka lazao ny laharana fanarahana.",
}

func lookupMessage(lang Language, category ErrorCategory) userMessage {
	catalog, ok := messageCatalog[lang]
	if !ok {
		catalog = messageCatalog[LanguageFrench]
	}
	if msg, ok := catalog[category]; ok {
		return msg
	}
	return catalog[CategoryInternal]
}

func lookupSupportHint(lang Language) string {
	if hint, ok := supportHints[lang]; ok {
		return hint
	}
	return supportHints[LanguageFrench]
}

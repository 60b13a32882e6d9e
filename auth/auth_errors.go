package auth

// Messages shown to the user when the utility API gives none of its own.
const (
	MsgRetry              = "Une erreur est survenue, veuillez réessayer."
	MsgServiceUnavailable = "Service momentanément indisponible, veuillez réessayer plus tard."
	MsgLoginRejected      = "Identifiant ou code incorrect."
	MsgAccountNotFound    = "Aucun compte n'est associé à cet identifiant. Veuillez vous inscrire."
	MsgInvalidPasscode    = "Le code doit contenir 6 chiffres."
	MsgInvalidIdentifier  = "Veuillez saisir votre identifiant."
	MsgUnknownProvider    = "Ce mode de connexion n'est pas disponible."
)

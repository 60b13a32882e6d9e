package config

type Social struct {
	GoogleClientID       string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `env:"GOOGLE_CLIENT_SECRET"`
	FacebookClientID     string `env:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `env:"FACEBOOK_CLIENT_SECRET"`
}

var _ SocialConfig = Social{}

func (s Social) GetGoogleClientID() string {
	return s.GoogleClientID
}

func (s Social) GetGoogleClientSecret() string {
	return s.GoogleClientSecret
}

func (s Social) GetFacebookClientID() string {
	return s.FacebookClientID
}

func (s Social) GetFacebookClientSecret() string {
	return s.FacebookClientSecret
}

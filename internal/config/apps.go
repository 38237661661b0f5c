package config

import "fmt"

// AppConfig describes one installed application.
type AppConfig struct {
	// Label is the application's stable identifier, also used as URL prefix.
	Label string `json:"label"`
	// Name is the human readable name.
	Name string `json:"name"`
	// Framework marks built-in infrastructure apps as opposed to farm modules.
	Framework bool `json:"framework"`
}

var frameworkApps = []AppConfig{
	{Label: "admin", Name: "Administration", Framework: true},
	{Label: "auth", Name: "Authentication", Framework: true},
	{Label: "contenttypes", Name: "Content types", Framework: true},
	{Label: "sessions", Name: "Sessions", Framework: true},
	{Label: "messages", Name: "Messages", Framework: true},
	{Label: "staticfiles", Name: "Static files", Framework: true},
}

var featureModules = []AppConfig{
	{Label: "accounts", Name: "Accounts"},
	{Label: "troupeau", Name: "Herd"},
	{Label: "historiquetroupeau", Name: "Herd history"},
	{Label: "accouplement", Name: "Mating"},
	{Label: "gestation", Name: "Gestation"},
	{Label: "naissance", Name: "Births"},
	{Label: "croissance", Name: "Growth"},
	{Label: "reproduction", Name: "Reproduction"},
	{Label: "embouche", Name: "Fattening"},
	{Label: "vaccination", Name: "Vaccination"},
	{Label: "maladie", Name: "Disease"},
	{Label: "veterinaire", Name: "Veterinary records"},
	{Label: "vente", Name: "Sales"},
	{Label: "genealogie", Name: "Genealogy"},
	{Label: "alimentation", Name: "Feeding"},
}

func installedApps() []AppConfig {
	apps := make([]AppConfig, 0, len(frameworkApps)+len(featureModules))
	apps = append(apps, frameworkApps...)
	apps = append(apps, featureModules...)
	return apps
}

// App returns the installed application with the given label.
func (s Settings) App(label string) (AppConfig, bool) {
	for _, app := range s.InstalledApps {
		if app.Label == label {
			return app, true
		}
	}
	return AppConfig{}, false
}

// FeatureModules returns the installed farm modules in declaration order.
func (s Settings) FeatureModules() []AppConfig {
	out := make([]AppConfig, 0, len(s.InstalledApps))
	for _, app := range s.InstalledApps {
		if !app.Framework {
			out = append(out, app)
		}
	}
	return out
}

// Request-processing stages, outermost first.
const (
	StageSecurity     = "security"
	StageStatic       = "static"
	StageSession      = "session"
	StageCommon       = "common"
	StageCSRF         = "csrf"
	StageAuth         = "auth"
	StageMessages     = "messages"
	StageClickjacking = "clickjacking"
)

func middlewareStages() []string {
	return []string{
		StageSecurity,
		StageStatic,
		StageSession,
		StageCommon,
		StageCSRF,
		StageAuth,
		StageMessages,
		StageClickjacking,
	}
}

// Route is a named URL.
type Route struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// AuthSettings holds the authentication redirect targets.
type AuthSettings struct {
	LoginURL          Route
	LoginRedirectURL  Route
	LogoutRedirectURL Route
}

// Named routes known to the settings layer.
const (
	RouteLogin  = "accounts:login"
	RouteLogout = "accounts:logout"
	RouteHome   = "accueil"
)

var namedRoutes = map[string]string{
	RouteLogin:  "/accounts/login/",
	RouteLogout: "/accounts/logout/",
	RouteHome:   "/",
}

// Reverse returns the path registered for a route name.
func Reverse(name string) (string, bool) {
	path, ok := namedRoutes[name]
	return path, ok
}

func mustRoute(name string) Route {
	path, ok := Reverse(name)
	if !ok {
		panic(fmt.Sprintf("config: unknown route %q", name))
	}
	return Route{Name: name, Path: path}
}

// Password validator names.
const (
	ValidatorUserAttributeSimilarity = "user_attribute_similarity"
	ValidatorMinimumLength           = "minimum_length"
	ValidatorCommon                  = "common"
	ValidatorNumeric                 = "numeric"
)

// ValidatorSpec names a password validator and its options.
type ValidatorSpec struct {
	Name      string
	MinLength int
}

func defaultPasswordValidators() []ValidatorSpec {
	return []ValidatorSpec{
		{Name: ValidatorUserAttributeSimilarity},
		{Name: ValidatorMinimumLength, MinLength: 8},
		{Name: ValidatorCommon},
		{Name: ValidatorNumeric},
	}
}

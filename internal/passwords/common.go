package passwords

var commonPasswords = toSet(
	"123456", "123456789", "12345678", "12345", "1234567", "1234567890",
	"password", "password1", "password123", "passw0rd", "qwerty", "qwerty123",
	"azerty", "azerty123", "azertyuiop", "qwertyuiop", "abc123", "111111",
	"000000", "123123", "654321", "iloveyou", "admin", "admin123",
	"welcome", "welcome1", "letmein", "monkey", "dragon", "football",
	"soleil", "bonjour", "motdepasse", "doudou", "chouchou", "loulou",
	"sunshine", "princess", "trustno1", "baseball", "master", "superman",
	"changeme", "secret", "default", "test1234", "1q2w3e4r", "zaq12wsx",
)

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

package version

// Version переопределяется при сборке через -ldflags.
var Version = "dev"

// GetVersion возвращает версию сборки.
func GetVersion() string {
	return Version
}

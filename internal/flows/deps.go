package flows

// Deps groups flow dependency sets. The Manager builds this once at Build time.
type Deps struct {
	Refresh RefreshDeps
	Logout  LogoutDeps
	Login   LoginDeps
}

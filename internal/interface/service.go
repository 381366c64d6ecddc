package interfaces

// Service is a public surface of the daemon wrapping the app service.
type Service interface {
	Start() error
	Stop()
}

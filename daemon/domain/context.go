package domain

// Context holds the application runtime context: the operational eventbus
// and the resolved configuration.
type Context struct {
	Hub *EventBus
	Config
}

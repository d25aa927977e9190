package marketing

var (
	WithClock = withClock
	WithIDs   = withIDs
)

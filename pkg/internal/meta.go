package pkg

var (
	AppVersion = "1.2.0"
)

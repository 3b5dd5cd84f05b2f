package core

// Logger is any service that can record application events.
// expected args: error | map[string]interface{} | Person | anything printable
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies who triggered a logged event, eg. the faculty member taking attendance.
type Person struct {
	ID       string
	Username string
	Email    string
}

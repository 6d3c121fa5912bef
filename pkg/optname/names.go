package optname

const (
	Concurrency        = "concurrency"
	ConnTimeout        = "connect-timeout"
	Dir                = "dir"
	Extract            = "extract"
	ExtractDir         = "extract-dir"
	Force              = "force"
	ForceHTTP2         = "force-http2"
	Header             = "header"
	Host               = "host"
	LoggingLevel       = "log-level"
	Manifest           = "manifest"
	MaxConcurrentFiles = "max-concurrent-files"
	NoProgress         = "no-progress"
	Output             = "output"
	PIDFile            = "pid-file"
	Resolve            = "resolve"
	Retries            = "retries"
	Serial             = "serial"
	Token              = "token"
	Verbose            = "verbose"
)

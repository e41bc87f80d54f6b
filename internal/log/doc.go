// Package log provides the imgguard loggers, built on the standard slog
// package.
//
// The SecureHandler sanitizes attributes before they reach the wrapped handler:
//   - user, user_id and userid attributes are masked
//   - http(s) URLs lose their query string, fragment and userinfo, which often
//     carry signed download tokens; this also applies to URLs inside error
//     messages
//
// Content digests and detector names are logged as is.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//	logger.Info("image downloaded",
//	    "url", "https://cdn.example/a.png?sig=abc", // logged as https://cdn.example/a.png
//	    "user_id", "alice",                         // logged as ***REDACTED***
//	)
//	slog.SetDefault(logger)
package log

package rendezvous

import "github.com/sirupsen/logrus"

type Config struct {
	Addr string
	// DBPath is the sqlite DSN of the peer directory. Empty means a
	// private in-memory database.
	DBPath string
	Logger *logrus.Logger
}

// Package cookies persists the client's HTTP cookies.
//
// Repository is the storage contract, SQLiteRepository its SQLite
// implementation over dbx.DBTX. Jar adapts a Repository to http.CookieJar so
// the session endpoint client keeps its server cookies across restarts:
//
//	jar := cookies.NewJar(cookies.NewSQLiteRepository(db), log)
//	hc := &http.Client{Jar: jar}
//
// Sign-out expires auth cookies with ExpireMatching (expiry set to the Unix epoch);
// the jar stops sending them and purges them on the next lookup. HttpOnly
// cookies are expired only after the server session has been deleted.
package cookies

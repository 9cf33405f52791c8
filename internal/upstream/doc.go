// Package upstream is the client for the social-graph GraphQL API.
//
// A request goes through four steps. The client paces it with a token
// bucket. It acquires a credential from the credential pool and a route
// from the egress pool. It sends the request and classifies the response
// into an explicit Outcome through a fixed status and error-code table.
// Finally it reports the outcome back to both pools and either parses the
// payload or retries with exponential backoff.
//
// The package knows two operations: Following, which pages through the
// accounts a user follows, and UserByScreenName, which resolves a handle to
// a stable id.
//
// Design decision: The retry protocol is an explicit loop in Client.do
// rather than a generic retry helper. Each outcome kind needs a different
// reaction (switch credential, back off, stop immediately) and the loop
// keeps all of them visible in one place.
package upstream

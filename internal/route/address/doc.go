// Package address provides hierarchical addresses and OSC-style pattern matching
// for the router.
//
// # Address Format
//
// Addresses are slash-separated paths that always begin with a slash:
//
//	/synth/1/freq
//	/mixer/master/gain
//	/transport/play
//
// Segments may be empty, so "/foo/" has the two segments "foo" and "".
//
// # Patterns
//
// Subscriptions use patterns, which are addresses that may contain wildcards
// inside a segment:
//
//   - "?" matches exactly one character
//   - "*" matches any run of characters, never crossing a "/"
//   - "[abc]" and "[a-z]" match one character from a class
//   - "[!abc]" matches one character not in the class
//   - "{foo,bar}" matches one of the listed literal fragments
//
// Matching is segment for segment. A pattern with N segments only matches
// addresses with exactly N segments; there is no multi-segment wildcard.
//
//	/synth/*/freq      matches /synth/1/freq, /synth/lead/freq
//	/synth/[0-9]/freq  matches /synth/1/freq (not /synth/lead/freq)
//	/mixer/{a,b}gain   matches /mixer/again, /mixer/bgain
//	/foo/*             matches /foo/bar and /foo/ (not /foo or /foo/bar/baz)
//
// # Usage
//
//	p, err := address.Compile("/synth/*/freq")
//	if err != nil {
//	    // errors.Is(err, address.ErrInvalidPattern)
//	}
//	p.Match(address.Address("/synth/1/freq")) // true
//
// The Trie type indexes many compiled patterns and returns every pattern that
// matches a concrete address. Tries are persistent: With and Without return new
// tries and never modify the receiver, so a trie can be read from any number of
// goroutines without locking.
package address

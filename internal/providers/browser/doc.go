/*
Package browser manages the embedded browsing surfaces of a remote-content run.

# Overview

One primary surface shows the address the launch resolver picked. Pages may
open popups, which become child surfaces stacked in the same container. The
Manager owns all of them and applies one navigation policy to every request.

# Surfaces

A Surface is the platform's browsing view. It asks its Delegate (the Manager)
before each navigation and reports what happened through HandleEvent:

  - EventRedirect: a server-initiated redirect
  - EventLoadFailed: the load ended with an error
  - EventLoadFinished: the page committed

Headless is a Surface backed by the shared HTTP client. It follows redirects
one hop at a time, reads the page title and meta refresh with goquery and
keeps its cookies in a Jar that can be snapshotted.

# Redirect loops

Each surface counts redirects. Past the limit (70 by default), or on a
transport's ErrTooManyRedirects, the load is stopped and the surface reloads
its last successful address. A primary surface with nowhere to go back to is
handed to the RecoveryHandler.

# Session cookies

Every redirect persists the merged cookie snapshot of all surfaces. A new
primary surface restores that snapshot before its first load.
*/
package browser

package link

import "golang.org/x/xerrors"

// ErrDisposed is returned by operations on a closed link or acceptor.
var ErrDisposed = xerrors.New("link is disposed")

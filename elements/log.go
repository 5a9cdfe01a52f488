package elements

import avpipe "github.com/erparts/go-avpipe"

func pkgLogf(format string, args ...interface{}) {
	avpipe.CurrentLogger().Warnf(format, args...)
}

func pkgDebugf(format string, args ...interface{}) {
	avpipe.CurrentLogger().Debugf(format, args...)
}

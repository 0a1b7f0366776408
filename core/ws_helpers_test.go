package core

import "net/http"

func httpHandler(cm *ConnManager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cm.Connect(w, r)
	})
}

// Package textutil holds the text shaping helpers shared by stages that turn
// run titles into filesystem artifacts.
package textutil

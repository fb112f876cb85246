/*
Package dsl provides a fluent Go builder for chatflow graphs.

It is an alternative to hand-written export files for tests, fixtures and
programmatically generated flows. Nodes are declared in order, wired with Go
(or IfTrue/IfFalse on a Condition) and compiled into a domain.Graph laid out
the way the editor would: Questions in the Container grid, everything else in
a column to its right.

Example usage:

	b := dsl.New()

	b.Start("start").Go("ask")
	b.Question("ask", "Do you want a demo?").Go("check")
	b.Condition("check", "user_input", domain.OpEquals, "yes").
		IfTrue("book").
		IfFalse("bye")
	b.End("book", domain.DemoBooking)
	b.Answer("bye", "Maybe next time!").Go("book")

	g, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}
	f := flow.FromGraph(g)
*/
package dsl

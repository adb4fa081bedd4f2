package assets

import (
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// lexicalDecl is one let or const statement, recorded in source order.
type lexicalDecl struct {
	keyword     string
	scope       *js.Scope
	vars        []*js.Var
	initialized bool
	inForHead   bool
	inLoop      bool
}

type occurrence struct {
	v     *js.Var
	scope *js.Scope
}

// scopeConflict names a block scoped binding that cannot become a var
// without changing what the program does.
type scopeConflict struct {
	decl   int
	name   string
	reason string
}

// scopeAnalyzer walks a parsed program in source order, tracking the scope
// every identifier appears in and how deeply it is nested in loops of its
// own function.
type scopeAnalyzer struct {
	scopes   []*js.Scope
	loops    []int
	decls    []*lexicalDecl
	lexical  map[*js.Var]*lexicalDecl
	declared map[*js.Var]*js.Scope
	uses     []occurrence
}

// analyzeBlockScoping parses src and reports every let or const binding
// whose semantics would change if it were declared with var instead. The
// returned declarations are in source order.
func analyzeBlockScoping(src string) ([]*lexicalDecl, []scopeConflict, error) {
	ast, err := js.Parse(parse.NewInputString(src), js.Options{})
	if err != nil {
		return nil, nil, err
	}

	a := &scopeAnalyzer{
		lexical:  map[*js.Var]*lexicalDecl{},
		declared: map[*js.Var]*js.Scope{},
	}
	js.Walk(a, ast)

	return a.decls, a.conflicts(), nil
}

func (a *scopeAnalyzer) Enter(n js.INode) js.IVisitor {
	switch n := n.(type) {
	case *js.BlockStmt:
		a.push(&n.Scope)
		a.list(n.List)
		a.pop()
	case *js.SwitchStmt:
		a.walk(n.Init)
		a.push(&n.Scope)
		for i := range n.List {
			a.walk(&n.List[i])
		}
		a.pop()
	case *js.CaseClause:
		a.walk(n.Cond)
		a.list(n.List)
	case *js.IfStmt:
		a.walk(n.Cond, n.Body, n.Else)
	case *js.WithStmt:
		a.walk(n.Cond, n.Body)
	case *js.WhileStmt:
		a.loop(func() { a.walk(n.Cond, n.Body) })
	case *js.DoWhileStmt:
		a.loop(func() { a.walk(n.Body, n.Cond) })
	case *js.ForStmt:
		a.loop(func() {
			a.push(&n.Body.Scope)
			a.walk(n.Init, n.Cond, n.Post)
			a.list(n.Body.List)
			a.pop()
		})
	case *js.ForInStmt:
		a.loop(func() {
			a.push(&n.Body.Scope)
			a.walk(n.Init, n.Value)
			a.list(n.Body.List)
			a.pop()
		})
	case *js.ForOfStmt:
		a.loop(func() {
			a.push(&n.Body.Scope)
			a.walk(n.Init, n.Value)
			a.list(n.Body.List)
			a.pop()
		})
	case *js.TryStmt:
		a.walk(n.Body)
		if n.Catch != nil {
			a.push(&n.Catch.Scope)
			a.walk(n.Binding)
			a.list(n.Catch.List)
			a.pop()
		}
		if n.Finally != nil {
			a.walk(n.Finally)
		}
	case *js.FuncDecl:
		if n.Name != nil {
			a.walk(n.Name)
		}
		a.function(&n.Params, &n.Body)
	case *js.MethodDecl:
		a.walk(&n.Name)
		a.function(&n.Params, &n.Body)
	case *js.ArrowFunc:
		a.function(&n.Params, &n.Body)
	case *js.CallExpr:
		a.walk(n.X, &n.Args)
	case *js.NewExpr:
		a.walk(n.X)
		if n.Args != nil {
			a.walk(n.Args)
		}
	case *js.TemplateExpr:
		a.walk(n.Tag)
		for i := range n.List {
			a.walk(&n.List[i])
		}
	case *js.VarDecl:
		a.declare(n)
		return a
	case *js.Var:
		a.uses = append(a.uses, occurrence{v: canonical(n), scope: a.current()})
	default:
		return a
	}
	return nil
}

func (a *scopeAnalyzer) Exit(js.INode) {}

func (a *scopeAnalyzer) walk(nodes ...js.INode) {
	for _, n := range nodes {
		js.Walk(a, n)
	}
}

func (a *scopeAnalyzer) list(stmts []js.IStmt) {
	for _, stmt := range stmts {
		js.Walk(a, stmt)
	}
}

func (a *scopeAnalyzer) function(params *js.Params, body *js.BlockStmt) {
	a.push(&body.Scope)
	a.walk(params)
	a.list(body.List)
	a.pop()
}

func (a *scopeAnalyzer) push(s *js.Scope) {
	a.scopes = append(a.scopes, s)
	if s.Func == s {
		a.loops = append(a.loops, 0)
	}
	for _, v := range s.Declared {
		a.declared[v] = s
	}
}

func (a *scopeAnalyzer) pop() {
	s := a.current()
	if s.Func == s {
		a.loops = a.loops[:len(a.loops)-1]
	}
	a.scopes = a.scopes[:len(a.scopes)-1]
}

func (a *scopeAnalyzer) current() *js.Scope {
	if len(a.scopes) == 0 {
		return nil
	}
	return a.scopes[len(a.scopes)-1]
}

func (a *scopeAnalyzer) loop(fn func()) {
	if len(a.loops) == 0 {
		fn()
		return
	}
	a.loops[len(a.loops)-1]++
	fn()
	a.loops[len(a.loops)-1]--
}

func (a *scopeAnalyzer) declare(n *js.VarDecl) {
	var keyword string
	switch n.TokenType {
	case js.LetToken:
		keyword = "let"
	case js.ConstToken:
		keyword = "const"
	default:
		return
	}

	d := &lexicalDecl{
		keyword:     keyword,
		scope:       n.Scope,
		initialized: true,
		inForHead:   n.InFor || n.InForInOf,
		inLoop:      len(a.loops) > 0 && a.loops[len(a.loops)-1] > 0,
	}
	for _, el := range n.List {
		if el.Default == nil && !n.InForInOf {
			d.initialized = false
		}
		d.vars = boundVars(d.vars, el.Binding)
	}
	for _, v := range d.vars {
		a.lexical[v] = d
	}
	a.decls = append(a.decls, d)
}

func (a *scopeAnalyzer) conflicts() []scopeConflict {
	captured := map[*js.Var]bool{}
	byName := map[string][]occurrence{}
	for _, o := range a.uses {
		if d, ok := a.lexical[o.v]; ok && o.scope != nil && o.scope.Func != d.scope.Func {
			captured[o.v] = true
		}
		byName[string(o.v.Data)] = append(byName[string(o.v.Data)], o)
	}

	mergeable := func(v *js.Var) bool {
		d := a.lexical[v]
		return d.initialized && !captured[v]
	}

	var conflicts []scopeConflict
	for i, d := range a.decls {
		fn := d.scope.Func
		for _, v := range d.vars {
			var reason string
			switch {
			case d.inLoop && captured[v]:
				reason = "captured by a function inside a loop"
			case d.inLoop && !d.initialized && !d.inForHead:
				reason = "declared without an initializer inside a loop"
			case d.scope != fn && a.collides(v, d, byName[string(v.Data)], mergeable):
				reason = "shadows another binding of the same name in the enclosing function"
			default:
				continue
			}
			conflicts = append(conflicts, scopeConflict{decl: i, name: string(v.Data), reason: reason})
		}
	}
	return conflicts
}

// collides reports whether hoisting v to its function scope would capture an
// identifier that currently resolves to a different binding.
func (a *scopeAnalyzer) collides(v *js.Var, d *lexicalDecl, uses []occurrence, mergeable func(*js.Var) bool) bool {
	fn := d.scope.Func
	for _, o := range uses {
		if o.v == v || o.v.Decl == js.CatchDecl || !within(o.scope, fn) {
			continue
		}

		sv := a.declared[o.v]
		if sv != nil && sv.Func != fn && within(sv, fn) {
			// declared in a nested function, which keeps shadowing it
			continue
		}
		if _, ok := a.lexical[o.v]; ok && sv != nil && sv.Func == fn && !within(sv, d.scope) && !within(d.scope, sv) && mergeable(v) && mergeable(o.v) {
			// sibling blocks: each binding is initialized before use and never outlives its block
			continue
		}
		return true
	}
	return false
}

func boundVars(vars []*js.Var, b js.IBinding) []*js.Var {
	switch b := b.(type) {
	case *js.Var:
		vars = append(vars, canonical(b))
	case *js.BindingArray:
		for _, el := range b.List {
			vars = boundVars(vars, el.Binding)
		}
		vars = boundVars(vars, b.Rest)
	case *js.BindingObject:
		for _, item := range b.List {
			vars = boundVars(vars, item.Value.Binding)
		}
		if b.Rest != nil {
			vars = append(vars, canonical(b.Rest))
		}
	}
	return vars
}

func canonical(v *js.Var) *js.Var {
	for v.Link != nil {
		v = v.Link
	}
	return v
}

func within(s, ancestor *js.Scope) bool {
	for ; s != nil; s = s.Parent {
		if s == ancestor {
			return true
		}
	}
	return false
}
